// drivefs is a command-line client for a Google Drive tree addressed by
// hierarchical paths: list, stat, download, upload, mkdir, remove, move
// and walk, with cached path resolution and retried transient failures.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drivefs/drivefs/internal/config"
	"github.com/drivefs/drivefs/internal/fsys"
	"github.com/drivefs/drivefs/internal/metrics"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/types"
)

const usage = `usage: drivefs [flags] <command> [args]

Commands:
  ls <path>            list directory contents
  stat <path>          print object metadata
  exists <path>        report whether path exists
  get <path> [file]    download a file (stdout when no file given)
  put <file> <path>    upload a file
  mkdir <path>         create a directory and missing ancestors
  rm <path>            remove an object
  mv <src> <dst>       move or rename an object
  cp <src> <dst>       copy a file
  walk <path>          print the subtree rooted at path
  checksum <path>      print a file's remote MD5 checksum

Flags:
`

func main() {
	var (
		configPath      = flag.String("config", "", "path to YAML configuration")
		credentialsPath = flag.String("credentials", "credentials.json", "OAuth client secret file")
		tokenPath       = flag.String("token", "token.json", "cached OAuth token file")
		long            = flag.Bool("l", false, "ls: include size and modification time")
		recursive       = flag.Bool("r", false, "rm: remove non-empty directories")
		permanent       = flag.Bool("permanent", false, "rm: delete irrecoverably instead of trashing")
		overwrite       = flag.Bool("f", false, "mv/cp: replace an existing destination")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drivefs: configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drivefs: logging init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ts, err := tokenSource(ctx, *credentialsPath, *tokenPath)
	if err != nil {
		logger.Fatal("authentication failed", zap.Error(err))
	}
	client, err := remote.NewDriveClient(ctx, ts, cfg, logger)
	if err != nil {
		logger.Fatal("drive client init failed", zap.Error(err))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			if err := collector.Serve(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		defer collector.Shutdown(context.Background())
	}

	fs := fsys.New(client, cfg, logger, collector)

	cmd, cmdArgs := args[0], args[1:]
	if err := run(ctx, fs, cmd, cmdArgs, cmdFlags{
		long:      *long,
		recursive: *recursive,
		permanent: *permanent,
		overwrite: *overwrite,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "drivefs: %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

type cmdFlags struct {
	long      bool
	recursive bool
	permanent bool
	overwrite bool
}

func run(ctx context.Context, fs *fsys.FileSystem, cmd string, args []string, flags cmdFlags) error {
	switch cmd {
	case "ls":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		entries, err := fs.Ls(ctx, path, flags.long)
		if err != nil {
			return err
		}
		for _, e := range entries {
			printEntry(e, flags.long)
		}
		return nil

	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("stat needs exactly one path")
		}
		obj, err := fs.Info(ctx, args[0])
		if err != nil {
			return err
		}
		printObject(obj)
		return nil

	case "exists":
		if len(args) != 1 {
			return fmt.Errorf("exists needs exactly one path")
		}
		ok, err := fs.Exists(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil

	case "get":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("get needs a path and an optional local file")
		}
		r, err := fs.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		out := io.Writer(os.Stdout)
		if len(args) == 2 {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		_, err = io.Copy(out, r)
		return err

	case "put":
		if len(args) != 2 {
			return fmt.Errorf("put needs a local file and a path")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return fs.WriteFile(ctx, args[1], "", data)

	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("mkdir needs exactly one path")
		}
		return fs.MkdirAll(ctx, args[0])

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("rm needs exactly one path")
		}
		opts := fsys.RmOptions{Recursive: flags.recursive}
		if flags.permanent {
			opts.Permanent = &flags.permanent
		}
		return fs.Rm(ctx, args[0], opts)

	case "mv":
		if len(args) != 2 {
			return fmt.Errorf("mv needs a source and a destination")
		}
		return fs.Mv(ctx, args[0], args[1], flags.overwrite)

	case "cp":
		if len(args) != 2 {
			return fmt.Errorf("cp needs a source and a destination")
		}
		return fs.Copy(ctx, args[0], args[1], flags.overwrite)

	case "walk":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return fs.Walk(ctx, path, func(dir string, dirs, files []types.DirEntry) error {
			for _, d := range dirs {
				fmt.Printf("%s/\n", join(dir, d.Name))
			}
			for _, f := range files {
				fmt.Println(join(dir, f.Name))
			}
			return nil
		})

	case "checksum":
		if len(args) != 1 {
			return fmt.Errorf("checksum needs exactly one path")
		}
		sum, err := fs.Checksum(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(sum)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printEntry(e types.DirEntry, long bool) {
	name := e.Name
	if e.IsDir {
		name += "/"
	}
	if long {
		fmt.Printf("%12d  %s  %s\n", e.Size, e.ModifiedTime.Format("2006-01-02 15:04"), name)
		return
	}
	fmt.Println(name)
}

func printObject(obj *types.Object) {
	fmt.Printf("id:       %s\n", obj.ID)
	fmt.Printf("name:     %s\n", obj.Title)
	fmt.Printf("mimeType: %s\n", obj.MimeType)
	fmt.Printf("size:     %d\n", obj.Size)
	fmt.Printf("modified: %s\n", obj.ModifiedTime.Format("2006-01-02 15:04:05"))
	if obj.MD5Checksum != "" {
		fmt.Printf("md5:      %s\n", obj.MD5Checksum)
	}
	if obj.Trashed {
		fmt.Println("trashed:  true")
	}
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func buildLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
