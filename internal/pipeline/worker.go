package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/dgallion1/dealmap/internal/chunker"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/parser"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

// Worker indexes one uploaded document into its deal.
type Worker struct {
	deals      *DealStore
	builder    *Builder
	log        *slog.Logger
	parserOpts parser.Options
	chunkOpts  chunker.Options
}

func NewWorker(deals *DealStore, builder *Builder, log *slog.Logger, parserOpts parser.Options, chunkOpts chunker.Options) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		deals:      deals,
		builder:    builder,
		log:        log,
		parserOpts: parserOpts,
		chunkOpts:  chunkOpts,
	}
}

// Process runs parse, build, merge and reindex for a job. Failures are
// recorded on the job; the deal keeps its previous snapshot.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "deal_id", job.DealID, "filename", job.Filename)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	src, err := parser.Parse(job.FileData(), job.Filename, w.parserOpts)
	job.releaseFile()
	if err != nil {
		log.Warn("parse failed", "error", err)
		job.Fail(FailureExtraction, "parsing", fmt.Sprintf("parse: %s", err))
		return
	}

	hash := ContentHashHex([]byte(strings.Join(src.Pages, "\f")))
	job.SetContentHash(hash)

	// Phase 2: Build the document's map and merge it into the deal.
	job.SetStatus(StatusBuilding, "building")
	var (
		doc    *docmap.Document
		part   *docmap.Map
		chunks int
		dupOf  string
	)
	_, err = w.deals.Update(job.DealID, func(cur *Snapshot) (*Snapshot, error) {
		if id, ok := cur.Hashes[hash]; ok {
			dupOf = id
			return nil, errDuplicate
		}
		var err error
		doc, err = NewDocument(src, nextDocIndex(cur.Map))
		if err != nil {
			return nil, err
		}
		part, err = w.builder.Build(ctx, []*docmap.Document{doc})
		if err != nil {
			return nil, err
		}
		merged, err := docmap.Merge(cur.Map, part)
		if err != nil {
			return nil, err
		}

		// Phase 3: Reindex the whole deal.
		job.SetStatus(StatusIndexing, "indexing")
		all := chunker.FromMap(merged, w.chunkOpts)
		for _, c := range all {
			if c.DocumentID == doc.ID {
				chunks++
			}
		}
		hashes := maps.Clone(cur.Hashes)
		hashes[hash] = doc.ID
		return &Snapshot{Map: merged, Index: retrieval.Build(all), Hashes: hashes}, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errDuplicate):
		log.Info("duplicate document, skipping", "existing_doc_id", dupOf)
		job.SetDocID(dupOf)
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	case docmap.IsNotFound(err):
		log.Warn("deal vanished before indexing", "error", err)
		job.Fail(FailureDeal, "building", err.Error())
		return
	case parser.IsExtractionFailure(err):
		log.Warn("no extractable text", "error", err)
		job.Fail(FailureExtraction, "building", err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		job.Fail(FailureCanceled, "building", err.Error())
		return
	default:
		log.Error("build failed", "error", err)
		job.Fail(FailureBuild, "building", fmt.Sprintf("build: %s", err))
		return
	}

	job.SetDocID(doc.ID)
	job.SetCounts(Progress{
		Pages:       doc.TotalPages,
		Anchors:     len(part.Anchors),
		Sections:    len(part.Sections),
		Definitions: len(part.Definitions),
		Xrefs:       len(part.Xrefs),
		Chunks:      chunks,
	})
	log.Info("document indexed",
		"doc_id", doc.ID,
		"pages", doc.TotalPages,
		"sections", len(part.Sections),
		"chunks", chunks,
	)
	job.SetStatus(StatusCompleted, "done")
}
