// Command bagger creates BagIt bags from directory trees and recomputes the
// manifests of existing bags.
//
//	bagger bag [source] [destination]   create a bag
//	bagger rebag [path]                 recompute an existing bag's manifests
//
// With no arguments, bag packages the current directory in place.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ndlib/bagger/bagger"
	"github.com/ndlib/bagger/bagit"
	"github.com/ndlib/bagger/config"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bagger:", err)
		os.Exit(1)
	}
}

type app struct {
	quiet      bool
	verbose    bool
	configPath string
	cfg        config.Config
}

func rootCommand() *cobra.Command {
	a := new(app)
	root := &cobra.Command{
		Use:           "bagger",
		Short:         "Create and update BagIt bags",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case a.quiet:
				log.SetLevel(log.ErrorLevel)
			case a.verbose:
				log.SetLevel(log.InfoLevel)
			default:
				log.SetLevel(log.WarnLevel)
			}
			var err error
			a.cfg, err = config.Load(a.configPath)
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "only log errors")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "V", false, "log per-file progress")
	root.PersistentFlags().StringVar(&a.configPath, "config", "bagger.toml", "path to the settings file")
	root.AddCommand(a.bagCommand(), a.rebagCommand())
	return root
}

func (a *app) bagCommand() *cobra.Command {
	var (
		algorithmNames []string
		excludeHidden  bool
		infoTags       []string
	)
	cmd := &cobra.Command{
		Use:   "bag [source] [destination]",
		Short: "Package a directory tree as a bag",
		Long: `Package a directory tree as a bag.

With no arguments the current directory is bagged in place: its contents are
moved into data/ and the tag files are written around them. With a source and
a destination the payload is copied and the source is left untouched.

--exclude-hidden-files DELETES dotfiles from the source tree when bagging in
place. This is irreversible.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := ".", "."
			switch len(args) {
			case 1:
				src, dst = args[0], args[0]
			case 2:
				src, dst = args[0], args[1]
			}
			algorithms, err := a.algorithms(algorithmNames)
			if err != nil {
				return err
			}
			opts := bagger.Options{
				Algorithms:    algorithms,
				ExcludeHidden: excludeHidden,
				Workers:       a.cfg.Workers,
				Info:          a.seedInfo(infoTags),
			}
			_, err = bagger.Create(interruptContext(), src, dst, opts)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&algorithmNames, "digest-algorithm", "a", nil, "digest algorithm to use; repeatable")
	cmd.Flags().BoolVar(&excludeHidden, "exclude-hidden-files", false, "leave dotfiles out of the bag (deletes them when bagging in place)")
	cmd.Flags().StringArrayVarP(&infoTags, "tag", "t", nil, `bag-info.txt tag as "Label: value"; repeatable`)
	return cmd
}

func (a *app) rebagCommand() *cobra.Command {
	var algorithmNames []string
	cmd := &cobra.Command{
		Use:   "rebag [path]",
		Short: "Recompute an existing bag's manifests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := "."
			if len(args) == 1 {
				base = args[0]
			}
			algorithms, err := parseAlgorithms(algorithmNames)
			if err != nil {
				return err
			}
			opts := bagger.RebagOptions{
				Algorithms: algorithms,
				Workers:    a.cfg.Workers,
			}
			_, err = bagger.Rebag(interruptContext(), base, opts)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&algorithmNames, "digest-algorithm", "a", nil, "digest algorithm to use; empty reuses the bag's existing set")
	return cmd
}

// algorithms resolves the flag values, falling back to the config file.
func (a *app) algorithms(names []string) ([]bagit.Algorithm, error) {
	if len(names) == 0 {
		names = a.cfg.DigestAlgorithms
	}
	return parseAlgorithms(names)
}

func parseAlgorithms(names []string) ([]bagit.Algorithm, error) {
	var algorithms []bagit.Algorithm
	for _, name := range names {
		a, err := bagit.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		algorithms = append(algorithms, a)
	}
	return algorithms, nil
}

// seedInfo merges config-file tags with --tag flags. Flags win.
func (a *app) seedInfo(flagTags []string) bagit.BagInfo {
	var info bagit.BagInfo
	labels := make([]string, 0, len(a.cfg.BagInfo))
	for label := range a.cfg.BagInfo {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		info.Add(label, a.cfg.BagInfo[label])
	}
	for _, tag := range flagTags {
		label, value := splitTag(tag)
		info.Set(label, value)
	}
	return info
}

func splitTag(tag string) (string, string) {
	label, value, ok := strings.Cut(tag, ":")
	if !ok {
		return tag, ""
	}
	return label, strings.TrimLeft(value, " \t")
}

// interruptContext returns a context canceled by SIGINT or SIGTERM, so an
// interrupted run stops digesting and writes nothing.
func interruptContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
