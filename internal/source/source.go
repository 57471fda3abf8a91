// Package source opens the input datasets. Locations are local paths,
// file:// URLs or http(s)://, ftp:// and sftp:// URLs. Remote files are
// downloaded once into a cache directory and read from there.
package source

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/tphakala/interpro-loader/internal/conf"
	"github.com/tphakala/interpro-loader/internal/errors"
	"github.com/tphakala/interpro-loader/internal/httpclient"
	"github.com/tphakala/interpro-loader/internal/logger"
)

const component = "source"

// Opener opens a dataset for sequential reading. The returned stream is
// already decompressed.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// DownloadObserver receives the outcome of every remote download.
type DownloadObserver func(scheme string, bytes int64, elapsed time.Duration, err error)

// Fetcher resolves locations to local files, downloading remote ones.
type Fetcher struct {
	settings      conf.SourceSettings
	forceDownload bool
	http          *httpclient.Client
	log           logger.Logger
	observe       DownloadObserver
}

var _ Opener = (*Fetcher)(nil)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(f *Fetcher) { f.http = c }
}

// WithDownloadObserver registers a download metrics callback.
func WithDownloadObserver(fn DownloadObserver) Option {
	return func(f *Fetcher) { f.observe = fn }
}

// WithForceDownload ignores cached copies of remote files.
func WithForceDownload(force bool) Option {
	return func(f *Fetcher) { f.forceDownload = force }
}

// New creates a Fetcher for the given source settings.
func New(settings *conf.SourceSettings, log logger.Logger, opts ...Option) *Fetcher {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	f := &Fetcher{log: log.Module(component)}
	if settings != nil {
		f.settings = *settings
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		f.http = httpclient.New(&httpclient.Config{
			DefaultTimeout: f.settings.Timeout,
			UserAgent:      f.settings.UserAgent,
		})
	}
	return f
}

// Close releases pooled connections.
func (f *Fetcher) Close() {
	f.http.Close()
}

// Open resolves location, downloading it if remote, and returns a
// decompressed stream.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	localPath, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fetchError(err, location, "open")
	}
	rc, err := Decompress(file)
	if err != nil {
		_ = file.Close()
		return nil, fetchError(err, location, "decompress")
	}
	return rc, nil
}

// Fetch returns a local path for location. Remote files are downloaded into
// the cache directory unless a cached copy exists and force download is off.
func (f *Fetcher) Fetch(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", fetchError(errors.NewStd("empty source location"), location, "resolve")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u, err := parseLocation(location)
	if err != nil {
		return "", fetchError(err, location, "resolve")
	}

	switch u.Scheme {
	case "", "file":
		p := u.Path
		if _, err := os.Stat(p); err != nil {
			return "", fetchError(err, location, "stat")
		}
		return p, nil
	case "http", "https", "ftp", "sftp":
	default:
		return "", fetchError(errors.Newf("unsupported source scheme %q", u.Scheme).Build(), location, "resolve")
	}

	target, err := f.cachePath(u)
	if err != nil {
		return "", fetchError(err, location, "cache_path")
	}
	if !f.forceDownload {
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			f.log.Debug("using cached source",
				logger.String("source", errors.ScrubLocation(location)),
				logger.String("path", target))
			return target, nil
		}
	}

	if err := f.download(ctx, u, target); err != nil {
		return "", fetchError(err, location, "download")
	}
	return target, nil
}

// CachePath returns where a remote location is cached; local paths are
// returned unchanged.
func (f *Fetcher) CachePath(location string) (string, error) {
	u, err := parseLocation(location)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Scheme == "file" {
		return u.Path, nil
	}
	return f.cachePath(u)
}

func (f *Fetcher) cachePath(u *url.URL) (string, error) {
	if f.settings.CacheDir == "" {
		return "", errors.NewStd("sources.cache_dir is not set")
	}
	clean := path.Clean("/" + u.Path)
	if clean == "/" {
		clean = "/index"
	}
	return filepath.Join(f.settings.CacheDir, u.Hostname(), filepath.FromSlash(clean)), nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, target string) (err error) {
	start := time.Now()
	var written int64
	defer func() {
		if f.observe != nil {
			f.observe(u.Scheme, written, time.Since(start), err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".part-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	f.log.Info("downloading source",
		logger.String("source", errors.ScrubLocation(u.String())),
		logger.String("path", target))

	w := bufio.NewWriterSize(tmp, 1<<20)
	switch u.Scheme {
	case "http", "https":
		written, err = f.copyHTTP(ctx, u, w)
	case "ftp":
		written, err = f.copyFTP(ctx, u, w)
	case "sftp":
		written, err = f.copySFTP(ctx, u, w)
	}
	if err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	f.log.Info("source downloaded",
		logger.String("path", target),
		logger.Int64("bytes", written),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// parseLocation treats anything without a recognised scheme as a local path.
func parseLocation(location string) (*url.URL, error) {
	if !strings.Contains(location, "://") {
		return &url.URL{Path: location}, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

func fetchError(err error, location, operation string) error {
	category := errors.CategorySourceFetch
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component(component).
		Category(category).
		Priority(errors.PriorityHigh).
		SourceContext("", location).
		Context("operation", operation).
		Build()
}

// gzipMagic starts every gzip member.
var gzipMagic = [2]byte{0x1f, 0x8b}

// Decompress wraps rc with a gzip reader when the stream starts with the
// gzip magic bytes and otherwise returns it buffered. Closing the result
// closes rc.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(rc, 64<<10)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(head) == len(gzipMagic) && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &stackedReadCloser{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	}
	return &stackedReadCloser{Reader: br, closers: []io.Closer{rc}}, nil
}

type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
