package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"confbk/internal/app"
	"confbk/internal/confbk"
	"confbk/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and maps the outcome to an exit status. It is the
// only place errors are printed.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return int(confbk.ExitCodeFor(err))
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func loadConfig() (*config.Config, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

type backupFlags struct {
	out      string
	dryRun   bool
	quiet    bool
	verbose  bool
	manifest string
	list     []string
	tarXZ    bool
	encrypt  bool
	vault    string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var f backupFlags

	root := &cobra.Command{
		Use:   "confbk [flags] [paths...]",
		Short: "Back up configuration files into a dated directory",
		Long: `confbk copies the files and directories named on the command line or
in a manifest file into a new output directory. With --tar-xz the
directory is compressed into a single archive, which can be encrypted
and copied to a vault.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, f, args)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &confbk.UsageError{Msg: err.Error()}
	})

	flags := root.Flags()
	flags.StringVarP(&f.out, "out", "o", "", "output directory (default <output_prefix>YYYY_MM_DD)")
	flags.BoolVarP(&f.dryRun, "dry-run", "d", false, "list what would be backed up and exit")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "print nothing on success")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "print every step")
	flags.StringVarP(&f.manifest, "file", "f", "", "manifest file listing paths, one per line")
	flags.StringArrayVarP(&f.list, "list", "l", nil, "path to back up (repeatable)")
	flags.BoolVarP(&f.tarXZ, "tar-xz", "x", false, "compress the output directory to .tar.xz and remove it")
	flags.BoolVarP(&f.encrypt, "encrypt", "e", false, "encrypt the archive with age (requires --tar-xz)")
	flags.StringVar(&f.vault, "vault", "", "copy the final archive to the named vault (requires --tar-xz)")

	root.AddCommand(
		newConfigCmd(),
		newKeysCmd(),
		newHistoryCmd(),
		newDecryptCmd(),
		newExtractCmd(),
		newVersionCmd(),
	)
	return root
}

func runBackup(cmd *cobra.Command, f backupFlags, args []string) error {
	level, err := confbk.LevelFromFlags(f.quiet, f.verbose)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := f.out
	if !cmd.Flags().Changed("out") {
		out = a.DefaultOutputPath()
	}

	req := confbk.Request{
		Paths:      append(f.list, args...),
		Manifest:   f.manifest,
		OutputPath: out,
		DryRun:     f.dryRun,
		Compress:   f.tarXZ,
		Encrypt:    f.encrypt,
		Vault:      f.vault,
		Level:      level,
	}
	_, err = a.Backup(req, cmd.OutOrStdout())
	return err
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := app.GetDefaults()
			if err != nil {
				return fmt.Errorf("getting defaults: %w", err)
			}

			cfg := config.NewConfig(defaults.BaseDir)
			if err := config.Init(defaults.ConfigPath, cfg); err != nil {
				if errors.Is(err, config.ErrExists) {
					return &confbk.ConflictError{Kind: "config file", Path: defaults.ConfigPath}
				}
				return fmt.Errorf("initializing config: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration initialized at %s\n", defaults.ConfigPath)
			fmt.Fprintf(w, "Base Dir: %s\n", defaults.BaseDir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the effective configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, defaults, err := loadConfig()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# Configuration from %s\n\n", defaults.ConfigPath)
			m := &config.Manager{}
			return m.Write(w, cfg)
		},
	})

	return cmd
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage encryption keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Generate the age key pair",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p := newPrompter(cmd)
			passphrase, err := p.passphrase("Passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := p.passphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return confbk.Usagef("passphrases do not match")
			}

			if err := a.InitKeys(passphrase); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Encryption keys created")
			return nil
		},
	})

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded backup runs",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.ListRuns(limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No backup runs recorded.")
				return nil
			}
			for _, r := range runs {
				duration := ""
				if r.FinishedAt.Valid {
					duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
				}
				artifact := r.ArchivePath
				if artifact == "" {
					artifact = r.OutputPath
				}
				fmt.Fprintf(w, "#%d  %s  %-8s  %3d  %s  %s\n",
					r.ID,
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Status,
					r.EntryCount,
					artifact,
					duration,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "decrypt FILE",
		Short: "Decrypt an encrypted archive",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			passphrase, err := newPrompter(cmd).passphrase("Passphrase: ")
			if err != nil {
				return err
			}
			written, err := a.Decrypt(args[0], out, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decrypted to %s\n", written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default FILE without .age)")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE",
		Short: "Unpack a .tar.xz archive",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Extract(args[0], dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "directory", "C", ".", "directory to extract into")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "confbk %s\n", version)
		},
	}
}

// prompter reads passphrases from the terminal without echo, or one line
// at a time when input is not a terminal.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
}

func (p *prompter) passphrase(prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", confbk.Usagef("no passphrase given on standard input")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// usageArgs turns positional argument errors into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &confbk.UsageError{Msg: err.Error()}
		}
		return nil
	}
}
