// internal/llm/prompts.go
package llm

// Answer prompt templates, keyed by the prompt_key carried on pipeline
// definitions. Placeholders are substituted by Render.
var answerPrompts = map[string]string{
	"irrigation": `You are an agronomy and irrigation advisor. Provide practical guidance on crop watering, soil moisture, irrigation systems, schedules, and weather impacts.
Use ONLY the provided context. If context lacks details, say what else is needed.

Context:
{context}

Farmer's question:
{question}

Prefer concise steps and clear thresholds (e.g., moisture %, mm of water). Avoid speculation; ask for missing data if necessary.`,

	"weather": `You are a weather and agricultural fieldwork advisor. Base answers strictly on the provided context and forecast data.

Context:
{context}

Farmer's weather question:
{question}

Always mention units. Translate forecasts into farm actions. Do not speculate without context.`,

	"soil": `You are a soil and water management advisor. Answer questions on soil moisture, soil temperature, and irrigation scheduling based on soil and weather data.

Context:
{context}

Farmer's soil question:
{question}

Use measurable values. Give irrigation timing in days or mm based on soil data. Highlight when more field data is required.`,

	"uv": `You are a UV index and sun safety advisor. Provide advice on outdoor work planning and safe exposure based on UV index.

Context:
{context}

Question:
{question}

Report the UV index on the 0-11+ scale and link it to outdoor farm safety. If data is missing, ask for location or time.`,

	"mandi": `You are a mandi and commodity price advisor. Provide current market rates, trends, and district/state price comparisons.

Context:
{context}

Farmer's market query:
{question}

Show price ranges (min, max, modal) and name commodity, market, district, state where available. Do not fabricate numbers.`,

	"general": `You are a helpful assistant for farmers. If the context is empty or irrelevant, answer succinctly from general knowledge and note when the context does not apply.

Context (may be empty):
{context}

Question:
{question}

Be concise and correct. If no context is available, do not fabricate citations.`,
}

// AnswerPrompt returns the answer template for a prompt key, falling back
// to the general template for unknown keys.
func AnswerPrompt(promptKey string) string {
	if p, ok := answerPrompts[promptKey]; ok {
		return p
	}
	return answerPrompts["general"]
}

// ClassifyPrompt asks for all relevant pipeline ids as strict JSON.
// The pipeline listing is rendered into {pipelines}.
const ClassifyPrompt = `You route farmer queries to data pipelines. These pipelines are available:

{pipelines}

Return ONLY valid JSON of the form {"pipelines": ["<id>", ...]} listing every pipeline relevant to the query. Do not add explanations.

Query: {question}`

// ClassifySchema validates the routing classification reply.
const ClassifySchema = `{
	"type": "object",
	"properties": {
		"pipelines": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["pipelines"]
}`

// CoordinatesPrompt extracts an explicit latitude/longitude pair from the
// query text, if one is present.
const CoordinatesPrompt = `Extract geographic coordinates from the query if the user states them.
Return ONLY valid JSON: {"latitude": <number or null>, "longitude": <number or null>}.
If no explicit coordinates appear in the query, use null for both. Do not add explanations.

Query: {question}`

const CoordinatesSchema = `{
	"type": "object",
	"properties": {
		"latitude": {"type": ["number", "null"]},
		"longitude": {"type": ["number", "null"]}
	},
	"required": ["latitude", "longitude"]
}`

// PlacePrompt extracts the city and state the query is about.
const PlacePrompt = `Extract the city and state (or region) a farming query refers to.
Return ONLY valid JSON: {"city": <string or null>, "state": <string or null>}.
Use null when a field is not present in the query. Do not add explanations.

Query: {question}`

const PlaceSchema = `{
	"type": "object",
	"properties": {
		"city": {"type": ["string", "null"]},
		"state": {"type": ["string", "null"]}
	},
	"required": ["city", "state"]
}`

// MandiFiltersPrompt extracts structured commodity-price filters.
const MandiFiltersPrompt = `You extract structured filters from a user query about Indian mandi prices.
Return ONLY valid JSON with these keys: state, district, market, commodity, variety, grade, limit, offset.
- Use title case strings (e.g., 'Maharashtra', 'Pune').
- If a field is not present, set it to null.
- If the user mentions a number of results or pagination, set limit/offset as integers; otherwise null.
- Do not add explanations.

Query: {question}`

const MandiFiltersSchema = `{
	"type": "object",
	"properties": {
		"state": {"type": ["string", "null"]},
		"district": {"type": ["string", "null"]},
		"market": {"type": ["string", "null"]},
		"commodity": {"type": ["string", "null"]},
		"variety": {"type": ["string", "null"]},
		"grade": {"type": ["string", "null"]},
		"limit": {"type": ["integer", "null"]},
		"offset": {"type": ["integer", "null"]}
	}
}`
