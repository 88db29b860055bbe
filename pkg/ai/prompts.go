package ai

import (
	"fmt"
	"strings"
)

const extractionPromptTemplate = `You are an information extraction system. Extract named entities and relationships from the provided text chunks.

Entity types to extract: %s

For each chunk, return entities (name, entity_type, optional description) and relationships between those entities (source, target, relation_type, optional description).

One result object per chunk, in the same order as the input chunks.

Text chunks:
%s`

// BuildExtractionPrompt renders the entity/relationship extraction prompt
// for a batch of chunk texts. Chunks are numbered so the model can return
// one result object per chunk in order.
func BuildExtractionPrompt(entityTypes []string, chunkTexts []string) string {
	var sb strings.Builder
	for i, text := range chunkTexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[Chunk %d]\n%s", i+1, text))
	}
	return fmt.Sprintf(extractionPromptTemplate, strings.Join(entityTypes, ","), sb.String())
}

const rerankPromptTemplate = `You are a relevance scoring system. Given a query and a list of text chunks, score each chunk's relevance to the query on a scale of 0.0 to 1.0.

Query: %s

Chunks:
%s

Return a JSON object with a "rankings" array. Each element must have "chunk_id" (the ID shown) and "relevance_score" (0.0 to 1.0).
Score 1.0 = perfectly relevant, 0.0 = completely irrelevant.

Return ONLY valid JSON, no other text.`

// BuildRerankPrompt renders the relevance scoring prompt. Chunk contents
// are truncated to 500 characters to bound prompt size.
func BuildRerankPrompt(query string, ids []string, contents []string) string {
	var sb strings.Builder
	for i := range ids {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		content := contents[i]
		if len(content) > 500 {
			content = content[:500]
		}
		sb.WriteString(fmt.Sprintf("[ID: %s]\n%s", ids[i], content))
	}
	return fmt.Sprintf(rerankPromptTemplate, query, sb.String())
}

const queryExpansionPromptTemplate = `Generate %d alternative search queries for the following question.
Each alternative should represent a different angle or phrasing of the original.
Do not repeat the original query.

Original query: %s

Return a JSON object with a "queries" key containing an array of exactly %d strings.
Return ONLY valid JSON, no other text.`

// BuildQueryExpansionPrompt renders the RAG-Fusion sub-query generation prompt.
func BuildQueryExpansionPrompt(query string, count int) string {
	return fmt.Sprintf(queryExpansionPromptTemplate, count, query, count)
}

const communityPromptTemplate = `You are summarizing a cluster of related entities found in a document collection.

Entities in this cluster: %s

Representative text excerpts mentioning these entities:
%s

Write a concise title (5-10 words) and a 2-3 sentence summary describing what this cluster of entities represents and how they relate to each other.

Output ONLY valid JSON:
{"title": "...", "summary": "..."}`

// BuildCommunityPrompt renders the community summarization prompt. At most
// 20 entity names and 5 excerpts are included.
func BuildCommunityPrompt(entityNames []string, excerpts []string) string {
	names := entityNames
	if len(names) > 20 {
		names = names[:20]
	}
	excerptText := "(no excerpts available)"
	if len(excerpts) > 0 {
		if len(excerpts) > 5 {
			excerpts = excerpts[:5]
		}
		excerptText = strings.Join(excerpts, "\n---\n")
	}
	return fmt.Sprintf(communityPromptTemplate, strings.Join(names, ", "), excerptText)
}

const chunkSummaryPromptTemplate = `Summarize the following text in 1-2 sentences. Capture the key facts and names so the summary is useful for search.

Text:
%s

Return only the summary text, nothing else.`

// BuildChunkSummaryPrompt renders the chunk summary enrichment prompt.
func BuildChunkSummaryPrompt(content string) string {
	return fmt.Sprintf(chunkSummaryPromptTemplate, content)
}

const documentMetadataPrompt = `Extract metadata from this document. Return JSON with these fields:
- "title": a concise descriptive title for the document
- "summary": a 1-2 sentence summary of the document's content
- "topics": a list of 1-5 topic tags (lowercase, short phrases)
- "document_date": the most relevant date mentioned in the document in YYYY-MM-DD format, or null if no date is found

Return ONLY valid JSON, no other text.`

// DocumentMetadataPrompt is the system prompt for document title/summary
// extraction during ingestion.
func DocumentMetadataPrompt() string {
	return documentMetadataPrompt
}
