package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-tal/pkg/tal"
)

const version = "0.1.0"

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tal",
		Short:         "Render TAL/METAL page templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRenderCommand(),
		newValidateCommand(),
		newVersionCommand(),
	)
	return cmd
}

type renderOpts struct {
	dataFile    string
	contextFile string
	configFile  string
	outFile     string
	strict      bool
	declaration bool
	logLevel    string
}

func (o *renderOpts) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.dataFile, "data", "", "YAML file whose top level keys become template variables")
	flags.StringVar(&o.contextFile, "context", "", "YAML file bound as 'here'")
	flags.StringVar(&o.configFile, "config", "", "YAML engine configuration")
	flags.StringVarP(&o.outFile, "out", "o", "", "Output file (default stdout)")
	flags.BoolVar(&o.strict, "strict", false, "Abort on the first expression error instead of skipping the element")
	flags.BoolVar(&o.declaration, "declaration", false, "Emit the XML declaration and doctype")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
}

func (o *renderOpts) engine(cmd *cobra.Command) (*tal.Engine, error) {
	config := tal.GetGlobalConfig()
	if o.configFile != "" {
		var err error
		if config, err = tal.ConfigFromFile(o.configFile); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("strict") {
		config.StrictMode = o.strict
	}
	if cmd.Flags().Changed("declaration") {
		config.SuppressDeclaration = !o.declaration
	}
	if o.logLevel != "" {
		config.LogLevel = o.logLevel
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	engine := tal.NewWithConfig(config)
	engine.SetFaultHandler(func(f tal.Fault) {
		warnColor.Fprintf(os.Stderr, "skipped <%s>: %v\n", f.Element, f.Err)
	})
	return engine, nil
}

func newRenderCommand() *cobra.Command {
	opts := renderOpts{}

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template with YAML data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd)
			if err != nil {
				return err
			}
			engine.SetResolver(engine.NewFSResolver(os.DirFS(filepath.Dir(args[0]))))

			tmpl, err := engine.PrepareFile(args[0])
			if err != nil {
				return err
			}

			data := map[string]any{}
			if err := readYAML(opts.dataFile, &data); err != nil {
				return err
			}
			var context any
			if err := readYAML(opts.contextFile, &context); err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if opts.outFile != "" {
				f, err := os.Create(opts.outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := tmpl.Process(out, context, data); err != nil {
				return err
			}
			if opts.outFile != "" {
				okColor.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", opts.outFile)
			}
			return nil
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

func newValidateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate <template>...",
		Short: "Check templates for directive and expression errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := tal.GetGlobalConfig()
			if configFile != "" {
				var err error
				if config, err = tal.ConfigFromFile(configFile); err != nil {
					return err
				}
			}
			engine := tal.NewWithConfig(config)

			failed := 0
			for _, path := range args {
				tmpl, err := engine.PrepareFile(path)
				if err == nil {
					err = tmpl.Validate()
				}
				if err != nil {
					failed++
					errorColor.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				okColor.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates failed validation", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "YAML engine configuration")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tal version %s\n", version)
		},
	}
}

func readYAML(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
