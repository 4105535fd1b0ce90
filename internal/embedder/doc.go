// Package embedder generates dense vector embeddings for item descriptions.
//
// It supports remote providers speaking the OpenAI embeddings schema
// (OpenAI, Jina) and an offline deterministic local provider, plus an
// in-memory single-flight cache so a batch run encodes each distinct text
// at most once.
//
// # Basic Usage
//
//	enc, err := embedder.New(embedder.Config{
//	    Provider: "openai",
//	    APIKey:   key,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enc.Close()
//
//	vec, err := enc.Encode(ctx, "Excavación manual en terreno natural")
//
// # Batching
//
// Corpus embedding should use EncodeBatch; the provider splits the input
// into API-sized chunks (EMBEDDING_BATCH_SIZE, default 32) and preserves
// input order:
//
//	vectors, err := enc.EncodeBatch(ctx, descriptions)
//
// # Caching
//
// Wrap query-side encoding with a Cache. Keys are the exact input string;
// concurrent lookups of the same text collapse into one provider call:
//
//	cache := embedder.NewCache(10000)
//	vec, err := cache.GetOrCompute(ctx, text, enc)
//
// # Vector semantics
//
// All providers return unit-length vectors, so downstream similarity is a
// plain dot product. The local provider is hash-based: deterministic and
// well-formed but semantically meaningless, intended for offline runs and
// tests.
package embedder
