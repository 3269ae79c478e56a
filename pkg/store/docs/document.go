package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"chatstore/pkg/state/logger"
	"chatstore/pkg/store/keys"
	"chatstore/pkg/store/metrics"
)

// Document is a handle on one document path. Set calls stage values
// locally; nothing is persisted until Write or Update.
type Document struct {
	db     *DB
	path   Path
	tokens []string
	key    string

	staged map[string][]byte
	known  map[string]struct{}
	err    error
}

func (d *Document) Path() Path { return d.path }

// Key is the storage key of the document's own status block.
func (d *Document) Key() string { return d.key }

// Staged returns the names of the fields waiting for Write or Update.
func (d *Document) Staged() []string {
	return sortedNames(d.staged)
}

// Set stages value under field. The value is JSON encoded; an encoding
// failure is reported by the next terminal operation.
func (d *Document) Set(field string, value any) *Document {
	if d.err != nil {
		return d
	}
	if field == "" {
		d.err = ErrInvalidName
		return d
	}
	b, err := json.Marshal(value)
	if err != nil {
		d.err = fmt.Errorf("docs: encode field %q: %w", field, err)
		return d
	}
	d.staged[field] = b
	return d
}

// SetList stages an ordered list of strings.
func (d *Document) SetList(field string, list []string) *Document {
	if list == nil {
		list = []string{}
	}
	return d.Set(field, list)
}

// SetMany stages every entry of fields.
func (d *Document) SetMany(fields map[string]any) *Document {
	for _, name := range sortedNames(fields) {
		d.Set(name, fields[name])
	}
	return d
}

// Collection returns a sub-collection rooted at this document.
func (d *Document) Collection(name string) *Collection {
	c := &Collection{db: d.db, parent: d.path, parentTokens: d.tokens, name: name}
	if d.tokens == nil {
		c.err = ErrInvalidName
	}
	return c
}

// Write persists the staged fields as a new document. It fails with
// ErrAlreadyExists when the document's path is currently valid.
func (d *Document) Write(ctx context.Context) error {
	err := d.write(ctx, true)
	d.db.metrics.Doc("write", docResult(err))
	return err
}

// Update persists the staged fields whether or not the document exists.
func (d *Document) Update(ctx context.Context) error {
	err := d.write(ctx, false)
	d.db.metrics.Doc("update", docResult(err))
	return err
}

func (d *Document) write(ctx context.Context, mustBeNew bool) error {
	if d.err != nil {
		return d.err
	}
	if len(d.staged) == 0 {
		return ErrEmptyWrite
	}
	if mustBeNew {
		ok, err := d.valid(ctx)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, d.path)
		}
	}
	if err := d.allocate(ctx); err != nil {
		return err
	}
	names := sortedNames(d.staged)
	if err := d.recordManifest(ctx, names); err != nil {
		return err
	}
	for _, name := range names {
		fk := d.fieldKey(name)
		if err := d.db.store.Write(ctx, []byte(fk), encodeField(d.staged[name])); err != nil {
			return fmt.Errorf("docs: write field %q of %s: %w", name, d.path, err)
		}
		d.known[name] = struct{}{}
		delete(d.staged, name)
	}
	logger.Debug("document_written", "path", d.path.String(), "fields", len(names))
	return nil
}

// Read decodes field into out. found is false when the document does not
// exist or the field was never set or has been deleted.
func (d *Document) Read(ctx context.Context, field string, out any) (bool, error) {
	payload, found, err := d.readField(ctx, field)
	d.db.metrics.Doc("read", readResult(found, err))
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		logger.Warn("document_field_corrupt", "path", d.path.String(), "field", field, "error", err)
		return false, fmt.Errorf("%w: field %q of %s: %v", ErrCorrupt, field, d.path, err)
	}
	return true, nil
}

func (d *Document) ReadString(ctx context.Context, field string) (string, bool, error) {
	var s string
	found, err := d.Read(ctx, field, &s)
	return s, found, err
}

func (d *Document) ReadInt(ctx context.Context, field string) (int64, bool, error) {
	var n int64
	found, err := d.Read(ctx, field, &n)
	return n, found, err
}

func (d *Document) ReadList(ctx context.Context, field string) ([]string, bool, error) {
	var list []string
	found, err := d.Read(ctx, field, &list)
	if found && list == nil {
		list = []string{}
	}
	return list, found, err
}

// Fields returns the names of the document's active fields, sorted. It is
// empty when the document does not exist.
func (d *Document) Fields(ctx context.Context) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	ok, err := d.valid(ctx)
	if err != nil || !ok {
		return nil, err
	}
	names, err := d.manifest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		active, err := d.fieldActive(ctx, name)
		if err != nil {
			return nil, err
		}
		if active {
			out = append(out, name)
		}
	}
	return out, nil
}

// Delete logically deletes the document: every field this handle or the
// manifest knows about is deactivated, then the document's own status
// block. Deleting twice is harmless.
func (d *Document) Delete(ctx context.Context) error {
	err := d.delete(ctx)
	d.db.metrics.Doc("delete", metrics.Result(err))
	return err
}

func (d *Document) delete(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	names := make(map[string]struct{}, len(d.staged)+len(d.known))
	for name := range d.staged {
		names[name] = struct{}{}
	}
	for name := range d.known {
		names[name] = struct{}{}
	}
	recorded, err := d.manifest(ctx)
	if err != nil {
		return err
	}
	for _, name := range recorded {
		names[name] = struct{}{}
	}
	for _, name := range sortedNames(names) {
		if err := d.deactivateField(ctx, name); err != nil {
			return err
		}
	}
	d.staged = make(map[string][]byte)

	raw, found, err := d.db.store.Read(ctx, []byte(d.key))
	if err != nil {
		return fmt.Errorf("docs: read status of %s: %w", d.path, err)
	}
	if found && len(raw) == 1 && raw[0] == keys.StatusInactive {
		return nil
	}
	if err := d.db.store.Write(ctx, []byte(d.key), inactiveBlock); err != nil {
		return fmt.Errorf("docs: deactivate %s: %w", d.path, err)
	}
	logger.Debug("document_deleted", "path", d.path.String(), "fields", len(names))
	return nil
}

// DeleteFields deactivates only the named fields. The document itself and
// its other fields are untouched. It is a no-op on a missing document.
func (d *Document) DeleteFields(ctx context.Context, fields ...string) error {
	err := d.deleteFields(ctx, fields)
	d.db.metrics.Doc("delete_fields", metrics.Result(err))
	return err
}

func (d *Document) deleteFields(ctx context.Context, fields []string) error {
	if d.err != nil {
		return d.err
	}
	for _, f := range fields {
		if f == "" {
			return ErrInvalidName
		}
		delete(d.staged, f)
	}
	ok, err := d.valid(ctx)
	if err != nil || !ok {
		return err
	}
	for _, f := range fields {
		if err := d.deactivateField(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether the document's full path is currently valid.
func (d *Document) Exists(ctx context.Context) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.valid(ctx)
}

// valid walks the path root first and stops at the first ancestor whose
// status is absent or inactive.
func (d *Document) valid(ctx context.Context) (bool, error) {
	for _, pk := range keys.GenDocPrefixes(d.tokens) {
		raw, found, err := d.db.store.Read(ctx, []byte(pk))
		if err != nil {
			return false, fmt.Errorf("docs: read status of %s: %w", d.path, err)
		}
		if !found {
			return false, nil
		}
		active, err := decodeStatus(raw)
		if err != nil {
			return false, fmt.Errorf("docs: status of %s: %w", d.path, err)
		}
		if !active {
			return false, nil
		}
	}
	return true, nil
}

// allocate marks every prefix of the path active, skipping those already
// active.
func (d *Document) allocate(ctx context.Context) error {
	for _, pk := range keys.GenDocPrefixes(d.tokens) {
		raw, found, err := d.db.store.Read(ctx, []byte(pk))
		if err != nil {
			return fmt.Errorf("docs: read status of %s: %w", d.path, err)
		}
		if found && len(raw) == 1 && raw[0] == keys.StatusActive {
			continue
		}
		if err := d.db.store.Write(ctx, []byte(pk), activeBlock); err != nil {
			return fmt.Errorf("docs: activate %s: %w", d.path, err)
		}
	}
	return nil
}

func (d *Document) readField(ctx context.Context, field string) ([]byte, bool, error) {
	if d.err != nil {
		return nil, false, d.err
	}
	if field == "" {
		return nil, false, ErrInvalidName
	}
	ok, err := d.valid(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	raw, found, err := d.db.store.Read(ctx, []byte(d.fieldKey(field)))
	if err != nil {
		return nil, false, fmt.Errorf("docs: read field %q of %s: %w", field, d.path, err)
	}
	if !found {
		return nil, false, nil
	}
	active, payload, err := decodeField(raw)
	if err != nil {
		return nil, false, fmt.Errorf("docs: field %q of %s: %w", field, d.path, err)
	}
	return payload, active, nil
}

func (d *Document) fieldActive(ctx context.Context, field string) (bool, error) {
	raw, found, err := d.db.store.Read(ctx, []byte(d.fieldKey(field)))
	if err != nil {
		return false, fmt.Errorf("docs: read field %q of %s: %w", field, d.path, err)
	}
	if !found {
		return false, nil
	}
	active, _, err := decodeField(raw)
	if err != nil {
		return false, fmt.Errorf("docs: field %q of %s: %w", field, d.path, err)
	}
	return active, nil
}

func (d *Document) deactivateField(ctx context.Context, field string) error {
	active, err := d.fieldActive(ctx, field)
	if err != nil || !active {
		return err
	}
	if err := d.db.store.Write(ctx, []byte(d.fieldKey(field)), inactiveBlock); err != nil {
		return fmt.Errorf("docs: deactivate field %q of %s: %w", field, d.path, err)
	}
	delete(d.known, field)
	return nil
}

func (d *Document) fieldKey(field string) string {
	return keys.GenFieldKey(d.key, d.db.hasher.Token(field))
}

func (d *Document) manifest(ctx context.Context) ([]string, error) {
	raw, found, err := d.db.store.Read(ctx, []byte(keys.GenManifestKey(d.key)))
	if err != nil {
		return nil, fmt.Errorf("docs: read manifest of %s: %w", d.path, err)
	}
	if !found {
		return nil, nil
	}
	return decodeManifest(raw)
}

// recordManifest adds names to the document's field manifest. The store
// cannot list keys, so Delete relies on the manifest to find fields
// written through other handles.
func (d *Document) recordManifest(ctx context.Context, names []string) error {
	existing, err := d.manifest(ctx)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(existing)+len(names))
	for _, n := range existing {
		set[n] = struct{}{}
	}
	changed := false
	for _, n := range names {
		if _, ok := set[n]; !ok {
			set[n] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	b, err := encodeManifest(sortedNames(set))
	if err != nil {
		return err
	}
	if err := d.db.store.Write(ctx, []byte(keys.GenManifestKey(d.key)), b); err != nil {
		return fmt.Errorf("docs: write manifest of %s: %w", d.path, err)
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func docResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrAlreadyExists):
		return metrics.ResultExists
	case errors.Is(err, ErrEmptyWrite):
		return metrics.ResultEmpty
	default:
		return metrics.ResultError
	}
}

func readResult(found bool, err error) string {
	if err != nil {
		return metrics.ResultError
	}
	if !found {
		return metrics.ResultNotFound
	}
	return metrics.ResultOK
}
