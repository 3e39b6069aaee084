// Package validation provides the Validator, which checks JSON Schema documents
// for well-formedness and validates JSON instances against them. Schema
// semantics are delegated to santhosh-tekuri/jsonschema; this package adds
// exhaustive error collection, a compilation cache and the size and text
// checks the rest of the engine relies on.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// DefaultMaxContentBytes is the hard limit for any persisted blob.
	DefaultMaxContentBytes = 10 << 20

	// resourceURL is the in-memory location every compiled document is
	// registered under. It never leaves this package.
	resourceURL = "mem:///schema.json"

	// KeywordCompile marks the synthetic error produced when a schema cannot
	// be compiled during instance validation.
	KeywordCompile = "compile"
)

var (
	// ErrInvalidSchema is returned when a document cannot be compiled as a schema.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrUnknownDraft is returned for an unsupported draft name.
	ErrUnknownDraft = errors.New("unknown schema draft")
)

// SizeError reports content above the configured limit.
type SizeError struct {
	Size  int
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("Content is too large (maximum %s)", humanize.IBytes(uint64(e.Limit)))
}

// Options configures a Validator.
type Options struct {
	// Draft applies to documents without a $schema keyword.
	Draft string
	// Strict rejects unknown keywords at schema positions.
	Strict bool
	// AllowComments accepts JSON with comments and trailing commas.
	AllowComments bool
	// MaxContentBytes bounds ValidateContentSize. Zero means the default.
	MaxContentBytes int
	// CacheSize bounds the number of cached compilations. Zero means 128.
	CacheSize int
}

// DefaultOptions mirrors the behaviour users of the desktop app expect:
// draft-07, strict keywords, format assertions and a 10 MiB limit.
func DefaultOptions() Options {
	return Options{
		Draft:           "draft7",
		Strict:          true,
		MaxContentBytes: DefaultMaxContentBytes,
		CacheSize:       128,
	}
}

// ParseDraft maps a configuration name onto a jsonschema draft.
func ParseDraft(name string) (*jsonschema.Draft, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "draft7", "draft-07", "7":
		return jsonschema.Draft7, nil
	case "draft4", "draft-04", "4":
		return jsonschema.Draft4, nil
	case "draft6", "draft-06", "6":
		return jsonschema.Draft6, nil
	case "2019-09", "draft2019", "draft2019-09":
		return jsonschema.Draft2019, nil
	case "2020-12", "draft2020", "draft2020-12":
		return jsonschema.Draft2020, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDraft, name)
	}
}

// Validator compiles schemas and validates instances. It is safe for
// concurrent use; compiled schemas are immutable and shared through the cache.
type Validator struct {
	opts    Options
	draft   *jsonschema.Draft
	cache   *compileCache
	printer *message.Printer
	logger  *zap.Logger
}

// New creates a Validator. A nil logger is replaced with a no-op logger.
func New(opts Options, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	draft, err := ParseDraft(opts.Draft)
	if err != nil {
		return nil, err
	}
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = DefaultMaxContentBytes
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	return &Validator{
		opts:    opts,
		draft:   draft,
		cache:   newCompileCache(opts.CacheSize),
		printer: message.NewPrinter(language.English),
		logger:  logger,
	}, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(opts Options, logger *zap.Logger) *Validator {
	v, err := New(opts, logger)
	if err != nil {
		panic(err)
	}
	return v
}

// Options returns the effective options.
func (v *Validator) Options() Options { return v.opts }

// ValidateSchemaDocument reports whether doc compiles as a JSON Schema.
func (v *Validator) ValidateSchemaDocument(doc SchemaDocument) SchemaResult {
	if _, err := v.compile(doc); err != nil {
		return SchemaResult{Valid: false, CompilationError: err.Error()}
	}
	return SchemaResult{Valid: true}
}

// ValidateInstance validates value against schema and returns every
// violation. A schema that fails to compile yields a single synthetic error.
func (v *Validator) ValidateInstance(value Instance, schema SchemaDocument) Result {
	sch, err := v.compile(schema)
	if err != nil {
		return Result{
			Valid: false,
			Errors: []ErrorRecord{{
				Keyword: KeywordCompile,
				Message: fmt.Sprintf("Schema compilation error: %s", err.Error()),
			}},
		}
	}

	err = sch.Validate(value.Value())
	if err == nil {
		return Result{Valid: true, Errors: []ErrorRecord{}}
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return Result{
			Valid:  false,
			Errors: []ErrorRecord{{Keyword: "validate", Message: err.Error()}},
		}
	}

	records := make([]ErrorRecord, 0)
	for _, leaf := range leaves(ve) {
		records = append(records, v.toRecord(leaf))
	}
	sortRecords(records)
	return Result{Valid: false, Errors: records}
}

// ValidateJSONText parses text as JSON. Empty input is always invalid.
func (v *Validator) ValidateJSONText(text string) TextResult {
	if strings.TrimSpace(text) == "" {
		return TextResult{Valid: false, Error: "JSON content is required"}
	}
	src := []byte(text)
	if v.opts.AllowComments {
		src = jsonc.ToJSON(src)
	}
	parsed, err := Decode(src)
	if err != nil {
		return TextResult{Valid: false, Error: fmt.Sprintf("Invalid JSON format: %s", err.Error())}
	}
	return TextResult{Valid: true, Parsed: parsed}
}

// ValidateContentSize rejects content above the configured limit.
func (v *Validator) ValidateContentSize(content []byte) error {
	if len(content) > v.opts.MaxContentBytes {
		return &SizeError{Size: len(content), Limit: v.opts.MaxContentBytes}
	}
	return nil
}

func (v *Validator) compile(doc SchemaDocument) (*jsonschema.Schema, error) {
	value := doc.Value()
	key, canonical, cacheable := cacheKey(value)
	if cacheable {
		if entry, ok := v.cache.get(key, canonical); ok {
			return entry.schema, entry.err
		}
	}

	sch, err := v.compileFresh(value)
	if cacheable {
		v.cache.put(key, canonical, sch, err)
	}
	if err != nil {
		v.logger.Debug("Schema compilation failed", zap.Error(err))
	}
	return sch, err
}

func (v *Validator) compileFresh(value any) (*jsonschema.Schema, error) {
	switch value.(type) {
	case bool, map[string]any:
	default:
		return nil, fmt.Errorf("%w: schema must be an object or boolean, got %s", ErrInvalidSchema, jsonType(value))
	}

	if v.opts.Strict {
		if err := checkKeywords(value); err != nil {
			return nil, err
		}
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(v.draft)
	c.AssertFormat()
	c.UseLoader(offlineLoader{})
	if err := c.AddResource(resourceURL, value); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, describeCompileError(err, v.printer))
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, describeCompileError(err, v.printer))
	}
	return sch, nil
}

func (v *Validator) toRecord(leaf *jsonschema.ValidationError) ErrorRecord {
	path := leaf.ErrorKind.KeywordPath()
	keyword := "false"
	if len(path) > 0 {
		keyword = path[len(path)-1]
	}

	schemaPath := "#"
	if i := strings.IndexByte(leaf.SchemaURL, '#'); i >= 0 {
		schemaPath += leaf.SchemaURL[i+1:]
	}
	if len(path) > 0 {
		schemaPath += jsonPointer(path)
	}

	return ErrorRecord{
		InstancePath: jsonPointer(leaf.InstanceLocation),
		SchemaPath:   schemaPath,
		Keyword:      keyword,
		Message:      leaf.ErrorKind.LocalizedString(v.printer),
	}
}

// offlineLoader refuses every external reference so compilation never
// touches the network or the filesystem.
type offlineLoader struct{}

func (offlineLoader) Load(url string) (any, error) {
	return nil, fmt.Errorf("external reference %q cannot be resolved", url)
}

// leaves flattens a validation error tree into its most specific causes.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leaves(cause)...)
	}
	return out
}

func describeCompileError(err error, p *message.Printer) string {
	var sve *jsonschema.SchemaValidationError
	if errors.As(err, &sve) {
		var ve *jsonschema.ValidationError
		if errors.As(sve.Err, &ve) {
			parts := make([]string, 0)
			for _, leaf := range leaves(ve) {
				parts = append(parts, fmt.Sprintf("at '%s': %s", jsonPointer(leaf.InstanceLocation), leaf.ErrorKind.LocalizedString(p)))
			}
			sort.Strings(parts)
			return "schema does not conform to its metaschema: " + strings.Join(parts, "; ")
		}
	}
	return strings.ReplaceAll(err.Error(), resourceURL, "schema")
}

func sortRecords(records []ErrorRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.InstancePath != b.InstancePath {
			return a.InstancePath < b.InstancePath
		}
		if a.Keyword != b.Keyword {
			return a.Keyword < b.Keyword
		}
		if a.SchemaPath != b.SchemaPath {
			return a.SchemaPath < b.SchemaPath
		}
		return a.Message < b.Message
	})
}

func jsonPointer(tokens []string) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteByte('/')
		tok = strings.ReplaceAll(tok, "~", "~0")
		sb.WriteString(strings.ReplaceAll(tok, "/", "~1"))
	}
	return sb.String()
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "number"
	}
}
