package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"tally/internal/embedder"
)

const embedBatchSize = 32

// Stats reports ingestion results.
type Stats struct {
	DocsTotal    int
	DocsIngested int
	DocsSkipped  int
	ChunksTotal  int
}

// SyncConfig controls corpus ingestion.
type SyncConfig struct {
	DocsDir   string
	ChunkSize int
	Workers   int
	// Embedder is optional; when set, chunk embeddings are stored and
	// hybrid retrieval becomes available.
	Embedder *embedder.OllamaEmbedder
	Logger   *slog.Logger
}

// docWork is a document that needs to be (re-)ingested.
type docWork struct {
	info   FileInfo
	hash   string
	chunks []Chunk
}

// embeddedWork has chunks with their embeddings ready to store.
type embeddedWork struct {
	work       docWork
	embeddings [][]float32
}

// Sync ingests the documents under cfg.DocsDir into the store. Unchanged
// files (by content hash) are skipped. When the configured embedding model
// differs from the one used previously, the whole corpus is re-ingested.
func Sync(ctx context.Context, s Store, cfg SyncConfig) (*Stats, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	embedModel := ""
	if cfg.Embedder != nil {
		embedModel = cfg.Embedder.Model()
	}
	lastModel, err := s.GetMeta("embedding_model")
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	if lastModel != embedModel {
		if lastModel != "" || embedModel != "" {
			log.Info("embedding model changed, re-ingesting corpus",
				"previous", lastModel, "current", embedModel)
		}
		if err := s.DeleteAll(); err != nil {
			return nil, fmt.Errorf("reset corpus: %w", err)
		}
	}

	var stats Stats
	var docsTotal atomic.Int64

	// Stage 1: walk the docs directory.
	fileCh, walkErrCh := Walk(cfg.DocsDir)

	// Stage 2: hash, skip unchanged, chunk (N workers).
	workCh := make(chan docWork, cfg.Workers)
	var hashWg sync.WaitGroup
	for range cfg.Workers {
		hashWg.Add(1)
		go func() {
			defer hashWg.Done()
			for fi := range fileCh {
				docsTotal.Add(1)
				src, err := os.ReadFile(fi.Path)
				if err != nil {
					log.Warn("read document failed", "path", fi.RelPath, "error", err)
					continue
				}
				h := sha256.Sum256(src)
				hash := hex.EncodeToString(h[:])

				existing, err := s.GetDocHash(fi.RelPath)
				if err == nil && existing == hash {
					continue // unchanged
				}

				chunks := SplitChunks(fi.RelPath, string(src), cfg.ChunkSize)
				if len(chunks) == 0 {
					continue
				}
				workCh <- docWork{info: fi, hash: hash, chunks: chunks}
			}
		}()
	}
	go func() {
		hashWg.Wait()
		close(workCh)
	}()

	// Stage 3: embed (1 worker, batches of embedBatchSize). Skipped when no
	// embedder is configured.
	embeddedCh := make(chan embeddedWork, 4)
	var embedErr error
	var embedWg sync.WaitGroup
	embedWg.Add(1)
	go func() {
		defer embedWg.Done()
		defer close(embeddedCh)

		for w := range workCh {
			if cfg.Embedder == nil {
				embeddedCh <- embeddedWork{work: w}
				continue
			}

			texts := make([]string, len(w.chunks))
			for i, c := range w.chunks {
				texts[i] = c.Content
			}

			allEmbeddings := make([][]float32, 0, len(texts))
			for i := 0; i < len(texts); i += embedBatchSize {
				end := min(i+embedBatchSize, len(texts))
				embs, err := cfg.Embedder.Embed(ctx, texts[i:end])
				if err != nil {
					log.Error("embed failed", "path", w.info.RelPath, "error", err)
					embedErr = err
					// Drain upstream so the hash workers and walker can finish.
					for range workCh {
					}
					return
				}
				allEmbeddings = append(allEmbeddings, embs...)
			}

			embeddedCh <- embeddedWork{work: w, embeddings: allEmbeddings}
		}
	}()

	// Stage 4: store (1 worker).
	var storeErr error
	var storeWg sync.WaitGroup
	storeWg.Add(1)
	go func() {
		defer storeWg.Done()

		for ew := range embeddedCh {
			docID, err := s.UpsertDoc(DocRecord{
				Path:      ew.work.info.RelPath,
				Hash:      ew.work.hash,
				SizeBytes: ew.work.info.Size,
			})
			if err != nil {
				log.Error("store document failed", "path", ew.work.info.RelPath, "error", err)
				storeErr = err
				continue
			}

			rowIDs, err := s.InsertChunks(docID, ew.work.chunks)
			if err != nil {
				log.Error("store chunks failed", "path", ew.work.info.RelPath, "error", err)
				storeErr = err
				continue
			}

			if len(ew.embeddings) > 0 {
				if err := s.InsertEmbeddings(rowIDs, ew.embeddings); err != nil {
					log.Error("store embeddings failed", "path", ew.work.info.RelPath, "error", err)
					storeErr = err
					continue
				}
			}

			stats.DocsIngested++
			stats.ChunksTotal += len(ew.work.chunks)
		}
	}()

	storeWg.Wait()
	embedWg.Wait()

	if err := <-walkErrCh; err != nil {
		return nil, fmt.Errorf("walk docs: %w", err)
	}

	stats.DocsTotal = int(docsTotal.Load())
	stats.DocsSkipped = stats.DocsTotal - stats.DocsIngested

	if err := s.SetMeta("embedding_model", embedModel); err != nil {
		return nil, fmt.Errorf("set meta: %w", err)
	}

	if embedErr != nil {
		return &stats, fmt.Errorf("embedding failed: %w", embedErr)
	}
	if storeErr != nil {
		return &stats, fmt.Errorf("storage failed: %w", storeErr)
	}

	return &stats, nil
}
