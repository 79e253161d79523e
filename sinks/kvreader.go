package sinks

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/kv"
)

var ErrRunNotFound = errors.New("run not found")

// RunRecord is a run as mirrored by KVSink.
type RunRecord struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Total      int         `json:"total"`
	Sent       int         `json:"sent"`
	Label      string      `json:"label"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
	Workers    map[int]int `json:"workers,omitempty"` // sends per worker index
	Failures   []string    `json:"failures,omitempty"`
}

// KVReader reads runs written by a KVSink with the same prefix.
type KVReader struct {
	store  kv.Store
	prefix string
}

func NewKVReader(store kv.Store, prefix string) *KVReader {
	if prefix == "" {
		prefix = "mailblast"
	}
	return &KVReader{store: store, prefix: prefix}
}

// Latest returns the id of the last started run.
func (r *KVReader) Latest(ctx context.Context) (string, error) {
	id, err := r.store.Get(ctx, latestKey(r.prefix))
	if errors.Is(err, kv.ErrNotFound) || (err == nil && id == "") {
		return "", ErrRunNotFound
	}
	return id, err
}

// Run returns one run. Expired and forgotten runs are ErrRunNotFound.
func (r *KVReader) Run(ctx context.Context, id string) (RunRecord, error) {
	fields, err := r.store.HGetAll(ctx, runKey(r.prefix, id))
	if err != nil {
		return RunRecord{}, err
	}
	if len(fields) == 0 {
		return RunRecord{}, errors.Wrapf(ErrRunNotFound, "run %s", id)
	}

	rec := parseRun(id, fields)
	rec.Failures, err = r.store.LRange(ctx, failuresKey(r.prefix, id), 0, -1)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// Runs returns every known run, newest first. Ids whose hash is gone are
// skipped.
func (r *KVReader) Runs(ctx context.Context) ([]RunRecord, error) {
	ids, err := r.store.SMembers(ctx, runsKey(r.prefix))
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Run(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Forget deletes the run hash and its failures. The latest pointer is
// dropped when it names the run.
func (r *KVReader) Forget(ctx context.Context, id string) error {
	keys := []string{runKey(r.prefix, id), failuresKey(r.prefix, id)}
	latest, err := r.Latest(ctx)
	switch {
	case err == nil && latest == id:
		keys = append(keys, latestKey(r.prefix))
	case err != nil && !errors.Is(err, ErrRunNotFound):
		return err
	}
	return r.store.Delete(ctx, keys...)
}

func parseRun(id string, fields map[string]string) RunRecord {
	rec := RunRecord{
		ID:     id,
		Status: fields["status"],
		Label:  fields["label"],
	}
	rec.Total, _ = strconv.Atoi(fields["total"])
	rec.Sent, _ = strconv.Atoi(fields["sent"])
	rec.StartedAt, _ = time.Parse(time.RFC3339, fields["started_at"])
	rec.FinishedAt, _ = time.Parse(time.RFC3339, fields["finished_at"])

	for k, v := range fields {
		idx, ok := strings.CutPrefix(k, "w")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(v)
		if rec.Workers == nil {
			rec.Workers = make(map[int]int)
		}
		rec.Workers[i] = n
	}
	return rec
}
