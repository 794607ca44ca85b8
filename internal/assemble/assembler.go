// internal/assemble/assembler.go
package assemble

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"agrivoice/internal/fetch"
	"agrivoice/internal/retrieval"
)

const (
	forecastDayCap = 5
	mandiSampleCap = 5
	noExternalData = "No external data available."
	noRelevantDocs = "No relevant documents."
)

// Assembler turns raw provider payloads and retrieved documents into the
// single context string handed to the answer prompt. Each capability
// contributes an independent fragment; an unavailable capability simply
// contributes nothing.
type Assembler struct{}

func New() *Assembler {
	return &Assembler{}
}

// BuildContext merges the external data summary with the retrieved
// document dump, in that order.
func (a *Assembler) BuildContext(results fetch.Results, docs []retrieval.Document) string {
	var b strings.Builder
	b.WriteString("External Data:\n")
	b.WriteString(a.Summarize(results))
	b.WriteString("\n\nRelevant Docs:\n")
	b.WriteString(formatDocs(docs))
	return b.String()
}

// Summarize renders one compact text fragment per available capability.
func (a *Assembler) Summarize(results fetch.Results) string {
	var parts []string

	if data, ok := results.Available(fetch.CapabilityWeather); ok {
		if frag := summarizeCurrentWeather(data); frag != "" {
			parts = append(parts, frag)
		}
		if frag := summarizeForecast(data); frag != "" {
			parts = append(parts, frag)
		}
	}
	if data, ok := results.Available(fetch.CapabilitySoil); ok {
		if frag := summarizeSoil(data); frag != "" {
			parts = append(parts, frag)
		}
	}
	if data, ok := results.Available(fetch.CapabilityUV); ok {
		if frag := summarizeUV(data); frag != "" {
			parts = append(parts, frag)
		}
	}
	if data, ok := results.Available(fetch.CapabilityMandi); ok {
		if frag := summarizeMandi(data); frag != "" {
			parts = append(parts, frag)
		}
	}

	if len(parts) == 0 {
		return noExternalData
	}
	return strings.Join(parts, "\n")
}

func summarizeCurrentWeather(data map[string]interface{}) string {
	current, ok := data["today_weather"].(map[string]interface{})
	if !ok {
		return ""
	}
	main, _ := current["main"].(map[string]interface{})
	clouds, _ := current["clouds"].(map[string]interface{})
	wind, _ := current["wind"].(map[string]interface{})
	return fmt.Sprintf(
		"Current Weather → Temp: %sK, Humidity: %s%%, Clouds: %s%%, Wind: %s m/s.",
		numField(main, "temp"), numField(main, "humidity"),
		numField(clouds, "all"), numField(wind, "speed"),
	)
}

// summarizeForecast aggregates the 3-hourly forecast entries into per-UTC-day
// min/max temperature and total rain, capped at the first days.
func summarizeForecast(data map[string]interface{}) string {
	entries, ok := data["forecast"].([]interface{})
	if !ok || len(entries) == 0 {
		return ""
	}

	type dayAgg struct {
		tmin, tmax float64
		hasTemp    bool
		rainTotal  float64
	}
	days := make(map[string]*dayAgg)
	var order []string

	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ts, ok := entry["dt"].(float64)
		if !ok || ts == 0 {
			continue
		}
		day := time.Unix(int64(ts), 0).UTC().Format("2006-01-02")
		agg, seen := days[day]
		if !seen {
			agg = &dayAgg{}
			days[day] = agg
			order = append(order, day)
		}

		if main, ok := entry["main"].(map[string]interface{}); ok {
			if temp, ok := main["temp"].(float64); ok {
				if !agg.hasTemp || temp < agg.tmin {
					agg.tmin = temp
				}
				if !agg.hasTemp || temp > agg.tmax {
					agg.tmax = temp
				}
				agg.hasTemp = true
			}
		}
		if rain, ok := entry["rain"].(map[string]interface{}); ok {
			if mm, ok := rain["3h"].(float64); ok {
				agg.rainTotal += mm
			}
		}
	}

	if len(order) == 0 {
		return ""
	}
	sort.Strings(order)
	if len(order) > forecastDayCap {
		order = order[:forecastDayCap]
	}

	compact := make([]string, 0, len(order))
	for _, day := range order {
		agg := days[day]
		tmin, tmax := "None", "None"
		if agg.hasTemp {
			tmin = formatNum(agg.tmin)
			tmax = formatNum(agg.tmax)
		}
		compact = append(compact, fmt.Sprintf("%s: Tmin=%sK, Tmax=%sK, Rain=%smm",
			day, tmin, tmax, formatNum(agg.rainTotal)))
	}
	return "Forecast (next days): " + strings.Join(compact, "; ")
}

func summarizeSoil(data map[string]interface{}) string {
	_, hasMoisture := data["moisture"]
	_, hasT0 := data["t0"]
	if !hasMoisture && !hasT0 {
		return ""
	}
	return fmt.Sprintf("Soil → Moisture: %s, Temp(0cm): %s, Temp(10cm): %s.",
		numField(data, "moisture"), numField(data, "t0"), numField(data, "t10"))
}

func summarizeUV(data map[string]interface{}) string {
	uvi, ok := data["uvi"].(float64)
	if !ok {
		return ""
	}
	return fmt.Sprintf("UV Index → %s.", formatNum(uvi))
}

// summarizeMandi renders a bounded sample of price records plus the total,
// tolerating both lowercase and capitalized record field names.
func summarizeMandi(data map[string]interface{}) string {
	records, ok := data["mandi_records"].([]interface{})
	if !ok || len(records) == 0 {
		return ""
	}

	sample := records
	if len(sample) > mandiSampleCap {
		sample = sample[:mandiSampleCap]
	}

	lines := make([]string, 0, len(sample))
	for _, raw := range sample {
		rec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		market := recField(rec, "market", "Market")
		district := recField(rec, "district", "District")
		state := recField(rec, "state", "State")
		commodity := recField(rec, "commodity", "Commodity")
		variety := recField(rec, "variety", "Variety")
		grade := recField(rec, "grade", "Grade")
		modal := recField(rec, "modal_price", "modal")
		minP := recField(rec, "min_price", "min")
		maxP := recField(rec, "max_price", "max")
		date := recField(rec, "arrival_date", "date")

		loc := joinNonEmpty([]string{market, district, state}, ", ")
		prod := joinNonEmpty([]string{commodity, variety, grade}, " / ")
		price := "Price N/A"
		if modal != "" || minP != "" || maxP != "" {
			price = fmt.Sprintf("Modal %s (min %s, max %s)", modal, minP, maxP)
		}
		when := ""
		if date != "" {
			when = " on " + date
		}
		lines = append(lines, fmt.Sprintf("%s — %s: %s%s", loc, prod, price, when))
	}
	if len(lines) == 0 {
		return ""
	}

	total := len(records)
	if t, ok := data["total"].(float64); ok && t > 0 {
		total = int(t)
	} else if t, ok := data["total"].(int); ok && t > 0 {
		total = t
	}
	return fmt.Sprintf("Mandi Prices (sample):\n%s\nTotal records: %d; showing %d",
		strings.Join(lines, "\n"), total, len(lines))
}

func formatDocs(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return noRelevantDocs
	}
	chunks := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Title != "" {
			chunks = append(chunks, doc.Title+"\n"+doc.Content)
		} else {
			chunks = append(chunks, doc.Content)
		}
	}
	return strings.Join(chunks, "\n\n")
}

func recField(rec map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := rec[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return formatNum(v)
		}
	}
	return ""
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func numField(m map[string]interface{}, key string) string {
	if m == nil {
		return "None"
	}
	if v, ok := m[key].(float64); ok {
		return formatNum(v)
	}
	return "None"
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
