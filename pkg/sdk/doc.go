// Package retrievex embeds the hybrid retrieval engine in a Go program.
//
// The client talks directly to the chunk index in Redis (and optionally
// Qdrant for vectors) and runs the same pipeline as the HTTP server:
// parallel lexical and vector retrieval, score fusion, optional rerank and an
// in-process result cache.
//
//	client, err := retrievex.New(ctx,
//	    retrievex.WithRedis("localhost:6379", ""),
//	    retrievex.WithEmbedder(myEmbedder),
//	)
//	if err != nil { ... }
//	defer client.Close()
//
//	resp, err := client.Search(ctx, retrievex.SearchRequest{
//	    Query: "reset admin password",
//	    TopK:  retrievex.Ptr(10),
//	    TaxonomyFilter: [][]string{{"docs", "security"}},
//	})
//
// A failure of one retrieval channel degrades the response instead of
// failing it; check Response.Degraded and Response.Warnings.
package retrievex
