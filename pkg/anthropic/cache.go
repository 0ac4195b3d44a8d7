package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The pipeline sends the same document once per stage; a
// 5-minute TTL on the document block lets the later stages of a run read
// the shared prompt prefix from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
