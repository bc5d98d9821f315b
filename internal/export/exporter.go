package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/reliefweb-corpus/internal/annotate"
	"github.com/JakeFAU/reliefweb-corpus/internal/blob"
	"github.com/JakeFAU/reliefweb-corpus/internal/publisher"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

const (
	tracerName = "github.com/JakeFAU/reliefweb-corpus/internal/export"
	// DefaultChunkSize bounds how many documents are loaded at once.
	DefaultChunkSize = 500
	// DefaultTagsetPath is the object the used-tag list is written to.
	DefaultTagsetPath = "tagset.txt"
	pathTimeLayout    = "20060102T150405Z"
)

// Corpus export modes. A full export starts a new major version; an add
// export carries only documents annotated since the last export and bumps
// the minor version.
const (
	ModeFull = "full"
	ModeAdd  = "add"
)

// DefaultFields are the record fields exported as document attributes.
var DefaultFields = []string{"title", "date.created", "country.name", "source.name", "language.code", "url"}

// Store is the slice of storage.Store the exporter reads.
type Store interface {
	AnnotationIDs(ctx context.Context) ([]string, error)
	Annotations(ctx context.Context, ids []string) ([]storage.AnnotatedDocument, error)
	Records(ctx context.Context, ids []string) ([]storage.RawRecord, error)
	About(ctx context.Context) (map[string]string, error)
	SetAbout(ctx context.Context, key, value string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Deps groups the collaborators of an Exporter. Publisher is optional.
type Deps struct {
	Store     Store
	Blobs     blob.Store
	Publisher publisher.Publisher
	Clock     Clock
	Logger    *zap.Logger
}

// Exporter writes corpus artifacts.
type Exporter struct {
	deps Deps
}

// NewExporter validates deps.
func NewExporter(deps Deps) (*Exporter, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Exporter{deps: deps}, nil
}

// CorpusOptions select what a corpus export contains and where it goes.
type CorpusOptions struct {
	// Path is the object path; empty means corpus/corpus-<timestamp>.vert,
	// with an .xz suffix when compressed.
	Path string
	// Mode is ModeFull or ModeAdd; empty means ModeFull.
	Mode string
	// Compress writes the corpus as an xz stream.
	Compress bool
	// Fields are the record field paths emitted as attributes; nil means
	// DefaultFields.
	Fields []string
	// Topic receives the Notice; empty skips publishing.
	Topic     string
	ChunkSize int
}

// Notice announces a finished corpus export.
type Notice struct {
	URI        string    `json:"uri"`
	Documents  int       `json:"documents"`
	Version    string    `json:"version,omitempty"`
	Compressed bool      `json:"compressed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	MessageID  string    `json:"-"`
}

// Corpus streams every annotated document, joined with its record, to the
// blob store and then publishes a Notice.
func (e *Exporter) Corpus(ctx context.Context, opts CorpusOptions) (Notice, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "export.corpus")
	defer span.End()

	notice, err := e.corpus(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.deps.Logger.Error("corpus export failed", zap.Error(err))
		return notice, err
	}
	span.SetAttributes(
		attribute.String("export.uri", notice.URI),
		attribute.Int("export.documents", notice.Documents),
	)
	return notice, nil
}

func (e *Exporter) corpus(ctx context.Context, opts CorpusOptions) (Notice, error) {
	now := e.deps.Clock.Now().UTC()
	mode := opts.Mode
	if mode == "" {
		mode = ModeFull
	}
	if mode != ModeFull && mode != ModeAdd {
		return Notice{}, fmt.Errorf("unknown export mode %q", opts.Mode)
	}
	path := opts.Path
	if path == "" {
		path = "corpus/corpus-" + now.Format(pathTimeLayout) + ".vert"
		if opts.Compress {
			path += ".xz"
		}
	}
	contentType := blob.ContentTypeVertical
	if opts.Compress {
		contentType = blob.ContentTypeXZ
	}

	about, err := e.deps.Store.About(ctx)
	if err != nil {
		return Notice{}, fmt.Errorf("read export version: %w", err)
	}
	version, err := nextVersion(about[storage.AboutExportVersion], mode)
	if err != nil {
		return Notice{}, err
	}
	var since time.Time
	if mode == ModeAdd && about[storage.AboutLastExport] != "" {
		if since, err = storage.ParseTime(about[storage.AboutLastExport]); err != nil {
			return Notice{}, fmt.Errorf("read last export time: %w", err)
		}
	}
	fields := opts.Fields
	if fields == nil {
		fields = DefaultFields
	}
	chunk := chunkSize(opts.ChunkSize)

	ids, err := e.deps.Store.AnnotationIDs(ctx)
	if err != nil {
		return Notice{}, fmt.Errorf("list annotated documents: %w", err)
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	var (
		docs int
		uri  string
	)
	g.Go(func() error {
		n, err := e.writeCompressed(gctx, pw, opts.Compress, ids, fields, chunk, since)
		docs = n
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		u, err := e.deps.Blobs.Put(gctx, path, contentType, pr)
		_ = pr.CloseWithError(err)
		uri = u
		return err
	})
	if err := g.Wait(); err != nil {
		return Notice{}, fmt.Errorf("write corpus: %w", err)
	}

	notice := Notice{URI: uri, Documents: docs, Compressed: opts.Compress, CreatedAt: now}
	if docs > 0 {
		if err := e.deps.Store.SetAbout(ctx, storage.AboutExportVersion, version); err != nil {
			return notice, fmt.Errorf("record export version: %w", err)
		}
		if err := e.deps.Store.SetAbout(ctx, storage.AboutLastExport, storage.FormatTime(now)); err != nil {
			return notice, fmt.Errorf("record export time: %w", err)
		}
		notice.Version = version
	} else {
		e.deps.Logger.Info("no documents to export", zap.String("mode", mode))
	}
	e.deps.Logger.Info("corpus exported",
		zap.String("uri", uri),
		zap.Int("documents", docs),
		zap.String("version", notice.Version),
	)
	if opts.Topic == "" || e.deps.Publisher == nil {
		return notice, nil
	}
	id, err := e.deps.Publisher.Publish(ctx, opts.Topic, notice)
	if err != nil {
		return notice, fmt.Errorf("publish export notice: %w", err)
	}
	notice.MessageID = id
	return notice, nil
}

func (e *Exporter) writeCompressed(
	ctx context.Context,
	w io.Writer,
	compress bool,
	ids, fields []string,
	chunk int,
	since time.Time,
) (int, error) {
	if !compress {
		return e.writeCorpus(ctx, w, ids, fields, chunk, since)
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("open xz stream: %w", err)
	}
	n, err := e.writeCorpus(ctx, xw, ids, fields, chunk, since)
	if err != nil {
		return n, err
	}
	if err := xw.Close(); err != nil {
		return n, fmt.Errorf("close xz stream: %w", err)
	}
	return n, nil
}

// writeCorpus writes the documents of ids annotated after since; a zero
// since writes them all.
func (e *Exporter) writeCorpus(
	ctx context.Context,
	w io.Writer,
	ids, fields []string,
	chunk int,
	since time.Time,
) (int, error) {
	bw := bufio.NewWriter(w)
	docs := 0
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]
		annotations, err := e.deps.Store.Annotations(ctx, part)
		if err != nil {
			return docs, fmt.Errorf("load annotations: %w", err)
		}
		records, err := e.deps.Store.Records(ctx, part)
		if err != nil {
			return docs, fmt.Errorf("load records: %w", err)
		}
		byID := make(map[string]storage.RawRecord, len(records))
		for _, r := range records {
			byID[r.ID] = r
		}
		for _, d := range annotations {
			if !since.IsZero() && !d.CreatedAt.After(since) {
				continue
			}
			rec, ok := byID[d.ID]
			if !ok {
				e.deps.Logger.Warn("annotated document has no record", zap.String("record_id", d.ID))
			}
			if err := WriteDoc(bw, d.ID, Attributes(rec, fields), d.Content); err != nil {
				return docs, err
			}
			docs++
		}
	}
	return docs, bw.Flush()
}

// TagsetOptions select where the used-tag list goes.
type TagsetOptions struct {
	// Path is the object path; empty means DefaultTagsetPath.
	Path      string
	ChunkSize int
}

// TagsetReport lists the tags found in the corpus.
type TagsetReport struct {
	URI  string
	Tags []string
	// Unknown are used tags missing from the loaded tagset.
	Unknown []string
}

// Tagset collects the distinct tags of every annotated document, writes
// them sorted one per line to opts.Path and warns about tags the tagset lacks.
func (e *Exporter) Tagset(ctx context.Context, tagset annotate.Tagset, opts TagsetOptions) (TagsetReport, error) {
	path := opts.Path
	if path == "" {
		path = DefaultTagsetPath
	}
	ids, err := e.deps.Store.AnnotationIDs(ctx)
	if err != nil {
		return TagsetReport{}, fmt.Errorf("list annotated documents: %w", err)
	}
	chunk := chunkSize(opts.ChunkSize)
	seen := make(map[string]struct{})
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		docs, err := e.deps.Store.Annotations(ctx, ids[start:end])
		if err != nil {
			return TagsetReport{}, fmt.Errorf("load annotations: %w", err)
		}
		for _, d := range docs {
			for _, line := range d.Content {
				if tag, ok := TagOf(line); ok {
					seen[tag] = struct{}{}
				}
			}
		}
	}

	report := TagsetReport{Tags: make([]string, 0, len(seen))}
	for tag := range seen {
		report.Tags = append(report.Tags, tag)
	}
	sort.Strings(report.Tags)
	for _, tag := range report.Tags {
		if !tagset.Has(tag) {
			report.Unknown = append(report.Unknown, tag)
			e.deps.Logger.Warn("tag missing from tagset", zap.String("tag", tag))
		}
	}

	var b strings.Builder
	for _, tag := range report.Tags {
		b.WriteString(tag)
		b.WriteByte('\n')
	}
	uri, err := e.deps.Blobs.Put(ctx, path, blob.ContentTypeVertical, strings.NewReader(b.String()))
	if err != nil {
		return report, fmt.Errorf("write tagset: %w", err)
	}
	report.URI = uri
	e.deps.Logger.Info("tagset exported",
		zap.String("uri", uri),
		zap.Int("tags", len(report.Tags)),
		zap.Int("unknown", len(report.Unknown)),
	)
	return report, nil
}

// TagOf returns the second column of a word line. Structure lines such as
// "<s>" have no tag.
func TagOf(line string) (string, bool) {
	line = strings.TrimRight(line, "\n")
	if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") && !strings.Contains(line, "\t") {
		return "", false
	}
	cols := strings.Split(line, "\t")
	if len(cols) < 3 || cols[1] == "" {
		return "", false
	}
	return cols[1], true
}

// nextVersion derives the "major.minor" label of the next export from the
// previous one. The first export is 1.0 in either mode.
func nextVersion(prev, mode string) (string, error) {
	if prev == "" {
		return "1.0", nil
	}
	majorText, minorText, ok := strings.Cut(prev, ".")
	major, errMajor := strconv.Atoi(majorText)
	minor, errMinor := strconv.Atoi(minorText)
	if !ok || errMajor != nil || errMinor != nil {
		return "", fmt.Errorf("malformed export version %q", prev)
	}
	if mode == ModeFull {
		return strconv.Itoa(major+1) + ".0", nil
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor+1), nil
}

func chunkSize(n int) int {
	if n <= 0 {
		return DefaultChunkSize
	}
	return n
}
