// Command sysprog-ufsctl is a small demonstration CLI that exercises the
// in-memory filesystem and, independently, a worker pool checksumming
// files after creation.
//
// UFS's single-threaded contract means the filesystem operations below
// always run serially on the main goroutine; the pool runs a separate,
// unrelated checksum job concurrently to demonstrate pkg/tpool without
// violating that contract.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/olegmenkov/sysprog/internal/logger"
	"github.com/olegmenkov/sysprog/pkg/config"
	"github.com/olegmenkov/sysprog/pkg/tpool"
	"github.com/olegmenkov/sysprog/pkg/ufs"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var logLevel string

	root := &cobra.Command{
		Use:   "sysprog-ufsctl",
		Short: "Demonstrates the in-memory filesystem and worker pool together",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger.SetLevel(cfg.Logging.Level)
		return cfg, nil
	}

	demo := &cobra.Command{
		Use:   "demo [files...]",
		Short: "Create files in an in-memory filesystem, then checksum each with a worker pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return runDemo(cfg, args, cmd.OutOrStdout())
		},
	}
	root.AddCommand(demo)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runDemo(cfg *config.Config, names []string, out io.Writer) error {
	fs := ufs.New(int(cfg.UFS.MaxFileSizeBytes), cfg.UFS.DescriptorPoolFloor)

	type created struct {
		name     string
		contents []byte
	}
	var files []created

	// All UFS operations happen here, serially, on the main goroutine —
	// the filesystem has no locking of its own and is never touched
	// again once the pool below starts.
	for i, name := range names {
		fd, err := fs.Open(name, ufs.Create)
		if err != nil {
			return fmt.Errorf("opening %q: %w", name, err)
		}
		payload := []byte(fmt.Sprintf("contents of %s (#%d)\n", name, i))
		if _, err := fs.Write(fd, payload); err != nil {
			return fmt.Errorf("writing %q: %w", name, err)
		}

		if err := fs.Close(fd); err != nil {
			return fmt.Errorf("closing %q: %w", name, err)
		}

		// Read back through a fresh descriptor: the writer's cursor sits
		// at end of file.
		rfd, err := fs.Open(name, ufs.ReadOnly)
		if err != nil {
			return fmt.Errorf("reopening %q: %w", name, err)
		}
		contents := make([]byte, len(payload))
		n, err := fs.Read(rfd, contents)
		if err != nil {
			return fmt.Errorf("reading %q back: %w", name, err)
		}
		if err := fs.Close(rfd); err != nil {
			return fmt.Errorf("closing %q: %w", name, err)
		}

		files = append(files, created{name: name, contents: contents[:n]})
	}
	fs.Destroy()

	pool, err := tpool.New(cfg.TPool.MaxThreads, cfg.TPool.MaxTasks)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	tasks := make([]*tpool.Task, 0, len(files))
	for _, f := range files {
		task, terr := tpool.NewTask(func(arg any) any {
			sum := sha256.Sum256(arg.([]byte))
			return hex.EncodeToString(sum[:])
		}, f.contents)
		if terr != nil {
			return fmt.Errorf("creating checksum task: %w", terr)
		}
		if perr := pool.Push(task); perr != nil {
			return fmt.Errorf("scheduling checksum task: %w", perr)
		}
		tasks = append(tasks, task)
	}

	for i, task := range tasks {
		result, jerr := task.Join()
		if jerr != nil {
			return fmt.Errorf("joining checksum task: %w", jerr)
		}
		fmt.Fprintf(out, "%s  %s\n", result, files[i].name)
	}

	return pool.Close()
}
