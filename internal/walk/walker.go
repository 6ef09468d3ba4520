// Package walk enumerates a directory tree through an argwait coordinator.
//
// Every directory listing and every stat runs on the loop's worker pool; the
// coordinator stitches the results back together on the loop goroutine, so
// the callbacks never run concurrently.
package walk

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/goforbroke1006/argwait"
)

// FileFunc receives every file that passed the filters. done must be
// completed once the caller finished with the file; the walk reports only
// after every done was completed.
type FileFunc func(path string, info fs.FileInfo, done *argwait.Handle)

// DoneFunc receives the outcome of a walk exactly once.
type DoneFunc func(sum Summary) error

// Summary describes a finished walk.
type Summary struct {
	Root    string `json:"root" yaml:"root"`
	Files   int    `json:"files" yaml:"files"`
	Dirs    int    `json:"dirs" yaml:"dirs"`
	Bytes   int64  `json:"bytes" yaml:"bytes"`
	Skipped int    `json:"skipped" yaml:"skipped"`
	Err     error  `json:"-" yaml:"-"`
}

// Walker walks directory trees of one filesystem on one loop.
type Walker struct {
	loop     *argwait.Loop
	fs       afero.Fs
	include  []glob.Glob
	exclude  []glob.Glob
	maxDepth int
	policy   argwait.ErrorPolicy
	logger   *slog.Logger
}

// Option configures a Walker.
type Option func(*options)

type options struct {
	include  []string
	exclude  []string
	maxDepth int
	policy   argwait.ErrorPolicy
	logger   *slog.Logger
}

// WithInclude keeps only files whose base name matches one of patterns.
func WithInclude(patterns ...string) Option {
	return func(o *options) {
		o.include = append(o.include, patterns...)
	}
}

// WithExclude skips files and directories whose base name matches one of patterns.
func WithExclude(patterns ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, patterns...)
	}
}

// WithMaxDepth lists at most depth directory levels, the root being the
// first one. Zero means unlimited.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithErrorPolicy sets the policy of the walk coordinator for errors raised
// while reporting.
func WithErrorPolicy(p argwait.ErrorPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLogger sets the logger handed to the walk coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a Walker. It fails when a filter pattern does not compile.
func New(loop *argwait.Loop, fsys afero.Fs, opts ...Option) (*Walker, error) {
	o := options{policy: argwait.Fatal}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	include, err := compile(o.include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exclude, err := compile(o.exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}

	return &Walker{
		loop:     loop,
		fs:       fsys,
		include:  include,
		exclude:  exclude,
		maxDepth: o.maxDepth,
		policy:   o.policy,
		logger:   o.logger,
	}, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Walk schedules the enumeration of root on the walker's loop and returns
// the coordinator driving it. Nothing happens until the loop runs. onFile may
// be nil. onDone is called once, with Summary.Err set when the walk was
// aborted by the first error.
func (w *Walker) Walk(root string, onFile FileFunc, onDone DoneFunc) *argwait.Coordinator {
	c := argwait.New(w.loop,
		argwait.WithLogger(w.logger),
		argwait.WithName("walk"),
		argwait.WithErrorPolicy(w.policy),
	)
	sum := Summary{Root: root}
	reported, aborted := false, false

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		sum.Dirs++
		c.Pass(argwait.Value(dir))
		w.loop.Go(w.readDirNames(dir), c.Arg())
		c.Then(func(args argwait.Args) error {
			dir := argwait.Arg[string](args, 0)
			names := argwait.Arg[[]string](args, 1)

			paths := make([]string, 0, len(names))
			stats := c.Group()
			for _, name := range names {
				if matchAny(w.exclude, name) {
					sum.Skipped++
					continue
				}
				path := filepath.Join(dir, name)
				paths = append(paths, path)
				w.loop.Go(w.stat(path), stats.Add())
			}

			c.Then(func(args argwait.Args) error {
				for i, v := range args.Group(0) {
					info := v.(fs.FileInfo)
					path := paths[i]

					if info.IsDir() {
						if w.maxDepth > 0 && depth+1 >= w.maxDepth {
							sum.Skipped++
							continue
						}
						walk(path, depth+1)
						continue
					}

					if len(w.include) > 0 && !matchAny(w.include, info.Name()) {
						sum.Skipped++
						continue
					}
					sum.Files++
					sum.Bytes += info.Size()

					done := c.Pend()
					if onFile == nil {
						done.Resolve(nil)
						continue
					}
					onFile(path, info, done)
				}
				return nil
			})
			return nil
		})
	}

	walk(root, 0)

	c.Wait(func() error {
		if reported {
			return nil
		}
		reported = true
		return onDone(sum)
	})

	var onError argwait.ErrorHandler
	onError = func(err error) error {
		if aborted {
			// listings and stats already in flight when the walk was aborted
			w.logger.Debug("walk error after abort", slog.String("root", root), slog.Any("error", err))
			c.Error(onError)
			return nil
		}
		if reported {
			return err
		}
		reported, aborted = true, true
		sum.Err = err
		w.logger.Warn("walk aborted", slog.String("root", root), slog.Any("error", err))
		if err := onDone(sum); err != nil {
			return err
		}
		c.Error(onError)
		return nil
	}
	c.Error(onError)

	return c
}

func (w *Walker) readDirNames(dir string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := w.fs.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", dir, err)
		}
		defer f.Close()

		names, err := f.Readdirnames(-1)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", dir, err)
		}
		sort.Strings(names)
		return names, nil
	}
}

func (w *Walker) stat(path string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := w.fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return info, nil
	}
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
