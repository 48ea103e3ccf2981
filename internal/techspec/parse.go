package techspec

import (
	"github.com/sells-group/watch-research/internal/llmjson"
	"github.com/sells-group/watch-research/internal/model"
)

// ParseSpecContent extracts the spec object from completion content. Content
// without a JSON object (including a bare null) yields empty fields.
func ParseSpecContent(content string) model.SpecFields {
	obj := llmjson.Object(content)
	if obj == nil {
		return model.SpecFields{}
	}
	return model.SpecFields(obj)
}
