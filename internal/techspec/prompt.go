package techspec

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert on luxury watches. Always answer with clean JSON and no additional explanation."

// specSchema is the example object shown to the model. Keys match
// model.KnownSpecKeys.
const specSchema = `{
  "brand": "brand name",
  "model": "model name",
  "case_material": "case material",
  "case_diameter": 40.5,
  "case_height": 12.5,
  "bezel_material": "bezel material",
  "crystal_type": "crystal type",
  "water_resistance": "water resistance",
  "dial_color": "dial color",
  "dial_numerals": "dial numerals",
  "bracelet_material": "bracelet material",
  "bracelet_color": "bracelet color",
  "clasp_material": "clasp material",
  "clasp_type": "clasp type",
  "movement_type": "movement type",
  "caliber": "caliber",
  "base_caliber": "base caliber",
  "power_reserve": 48,
  "jewels": 31,
  "frequency": "frequency",
  "functions": ["date", "chronograph"],
  "gender": "men's watch",
  "description": "short description",
  "delivery_scope": "delivery scope"%s
}`

const imageURLsSchema = `,
  "image_urls": ["https://...jpg", "https://...jpg"]`

// buildPrompt renders the user prompt. search selects the web-search variant,
// which also asks for image URLs; the non-search variant asks the model to
// answer null when it does not recognise the brand.
func buildPrompt(brand *string, ref string, modelName *string, search bool) string {
	var sb strings.Builder

	if search {
		sb.WriteString("Search the web for the technical specifications of this luxury watch:\n")
	} else {
		sb.WriteString("Give me the technical specifications of this luxury watch:\n")
	}

	if brand != nil && strings.TrimSpace(*brand) != "" {
		fmt.Fprintf(&sb, "Brand: %s\n", strings.TrimSpace(*brand))
	} else {
		sb.WriteString("Brand: unknown (please identify it from the reference)\n")
	}
	fmt.Fprintf(&sb, "Reference number: %s\n", ref)
	if modelName != nil && strings.TrimSpace(*modelName) != "" {
		fmt.Fprintf(&sb, "Model: %s\n", strings.TrimSpace(*modelName))
	}

	if search {
		sb.WriteString("\nReturn the data as JSON with these fields (where available):\n")
		fmt.Fprintf(&sb, specSchema, imageURLsSchema)
	} else {
		sb.WriteString("\nReturn the data as JSON with these fields (where known to you):\n")
		fmt.Fprintf(&sb, specSchema, "")
	}

	sb.WriteString("\n\nIMPORTANT: Answer ONLY with the JSON object and no additional explanation.")
	if !search {
		sb.WriteString("\nIf you do not recognise the brand from the reference number, answer null.")
	}
	return sb.String()
}
