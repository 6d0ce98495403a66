package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/shellwire/internal/protocol"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"github.com/yoanbernabeu/shellwire/internal/transfer"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <target> <local> <remote>",
	Short: "Copy a local file to the target",
	Long: `Streams a local file into the target's shell and writes it to the remote
path with head -c. Binary content is safe; nothing is executed from it.

Example:
  shellwire upload web ./release.tar.gz /tmp/release.tar.gz`,
	Args: cobra.ExactArgs(3),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <target> <remote> <local>",
	Short: "Copy a file from the target",
	Long: `Reads a remote file through the target's shell and writes it locally.
The file size is obtained with stat; use --stat bsd on macOS and *BSD.

Example:
  shellwire download web /var/log/syslog ./syslog`,
	Args: cobra.ExactArgs(3),
	RunE: runDownload,
}

var rmCmd = &cobra.Command{
	Use:   "rm <target> <file>...",
	Short: "Delete files on the target",
	Long: `Deletes one or more files on the target with a single rm command.

Example:
  shellwire rm web /tmp/release.tar.gz
  shellwire rm web -f /tmp/maybe-missing`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRm,
}

var (
	downloadStat string
	rmForce      bool
	noProgress   bool
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(rmCmd)

	uploadCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show a progress line")
	downloadCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not show a progress line")
	downloadCmd.Flags().StringVar(&downloadStat, "stat", "", "stat flavour: gnu or bsd (default: from config)")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Ignore missing files")
}

func runUpload(cmd *cobra.Command, args []string) error {
	target, local, remote := args[0], args[1], args[2]
	if err := security.ValidateRemotePath(remote); err != nil {
		return fmt.Errorf("invalid remote path: %w", err)
	}

	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("failed to read local file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", local)
	}

	conn, err := Connect(target, "")
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := []transfer.Option{transfer.WithLogger(conn.Logger)}
	p := progressPrinter(filepath.Base(local))
	if p != nil {
		opts = append(opts, transfer.WithProgress(p.update))
	}

	err = transfer.Upload(conn.Executor, local, remote, opts...)
	p.finish()
	if err != nil {
		return err
	}

	PrintSuccess("Uploaded %s to %s:%s (%d bytes)", local, conn.Target, remote, info.Size())
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	target, remote, local := args[0], args[1], args[2]
	if err := security.ValidateRemotePath(remote); err != nil {
		return fmt.Errorf("invalid remote path: %w", err)
	}

	conn, err := Connect(target, "")
	if err != nil {
		return err
	}
	defer conn.Close()

	stat := conn.Stat
	if downloadStat != "" {
		if stat, err = protocol.ParseStatStyle(downloadStat); err != nil {
			return err
		}
	}

	opts := []transfer.Option{transfer.WithLogger(conn.Logger), transfer.WithStat(stat)}
	p := progressPrinter(filepath.Base(remote))
	if p != nil {
		opts = append(opts, transfer.WithProgress(p.update))
	}

	err = transfer.Download(conn.Executor, remote, local, opts...)
	p.finish()
	if err != nil {
		return err
	}

	PrintSuccess("Downloaded %s:%s to %s", conn.Target, remote, local)
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	target, files := args[0], args[1:]
	for _, f := range files {
		if err := security.ValidateRemotePath(f); err != nil {
			return fmt.Errorf("invalid remote path: %w", err)
		}
	}

	conn, err := Connect(target, "")
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := transfer.Delete(conn.Executor, files, rmForce); err != nil {
		return err
	}

	PrintSuccess("Deleted %d file(s) on %s", len(files), conn.Target)
	return nil
}

// progress redraws a single status line on stderr
type progress struct {
	name  string
	out   io.Writer
	drawn bool
	pct   int
}

// progressPrinter returns nil when stderr is not a terminal or progress is
// disabled
func progressPrinter(name string) *progress {
	if noProgress || IsYesMode() || !isTerminal(os.Stderr) {
		return nil
	}
	return &progress{name: name, out: os.Stderr, pct: -1}
}

func (p *progress) update(done, total int64) {
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	if pct == p.pct {
		return
	}
	p.pct = pct
	p.drawn = true
	fmt.Fprintf(p.out, "\r   %s %3d%% (%s / %s)", p.name, pct, formatBytes(done), formatBytes(total))
}

func (p *progress) finish() {
	if p != nil && p.drawn {
		fmt.Fprintln(p.out)
	}
}

// formatBytes renders n with a binary unit suffix
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
