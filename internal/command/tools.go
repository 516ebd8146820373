package command

const (
	ToolSpawn  = "spawn_furniture"
	ToolDelete = "delete_furniture"
	ToolScale  = "scale_furniture"
	ToolModify = "modify_furniture"

	MinScaleFactor = 0.1
	MaxScaleFactor = 5.0
)

// Tool is a function the reasoner may call. Parameters is a JSON schema
// object, sent to the LLM as is and used to validate its arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

var (
	ObjectNames = []string{"chair", "table", "sofa", "couch", "lamp", "bed", "desk", "shelf", "bench", "stool"}

	BaseColors = []string{"red", "blue", "green", "yellow", "white", "black", "brown", "orange", "purple", "pink", "gray"}

	RelativePositions = []string{"front", "behind", "left", "right"}
)

// Colors lists every base color followed by its light_ and dark_ variants.
func Colors() []string {
	out := make([]string, 0, len(BaseColors)*3)
	out = append(out, BaseColors...)
	for _, c := range BaseColors {
		out = append(out, "light_"+c, "dark_"+c)
	}
	return out
}

func enum(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Tools returns the tool set offered to the reasoner. Every call builds
// fresh schema maps.
func Tools() []Tool {
	colors := enum(Colors())

	return []Tool{
		{
			Name: ToolSpawn,
			Description: "Spawn a piece of furniture in the AR environment. Use this when the user wants to create, place, spawn, or add furniture. " +
				"Choose the most contextually appropriate model variant (e.g., OfficeChair for desk, Recliner for relaxing).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"objectName": map[string]any{
						"type":        "string",
						"enum":        enum(ObjectNames),
						"description": "The type of furniture object to spawn",
					},
					"modelId": map[string]any{
						"type":        "string",
						"description": "REQUIRED: The specific model ID from the inventory to spawn. Choose based on context and subcategories.",
					},
					"color": map[string]any{
						"type":        "string",
						"enum":        colors,
						"description": "Optional: The color to apply to the furniture. Only include if user specifies a color. Use light_/dark_ variants for 'light blue', 'dark green' and similar.",
					},
					"quantity": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"description": "Number of objects to spawn. Default is 1.",
						"default":     1,
					},
					"relativePosition": map[string]any{
						"type": "string",
						"enum": enum(RelativePositions),
						"description": "Optional: Spawn relative to user position. Use 'front' for 'in front of me', 'behind' for 'behind me', " +
							"'left' for 'to my left', 'right' for 'to my right'. If not specified, the client uses raycast placement.",
					},
				},
				"required": []any{"objectName", "modelId"},
			},
		},
		{
			Name: ToolDelete,
			Description: "Delete furniture from the scene. Extract objectName and color if mentioned in user's command. " +
				"Examples: 'delete the pink chair' -> objectName='chair', color='pink'. 'remove the table' -> objectName='table'. 'delete this' -> no parameters.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"objectName": map[string]any{
						"type":        "string",
						"enum":        enum(ObjectNames),
						"description": "Furniture type mentioned by user",
					},
					"color": map[string]any{
						"type":        "string",
						"enum":        colors,
						"description": "Color mentioned by user (if any)",
					},
				},
			},
		},
		{
			Name: ToolScale,
			Description: "Scale (resize) the furniture object that the user is either holding/grabbing with their hand OR pointing at with the ray. " +
				"Use this when user says 'make it bigger', 'make it smaller', 'scale up', 'resize', etc.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"scaleFactor": map[string]any{
						"type": "number",
						"description": "The multiplier to scale the object. Examples: 1.2 for 20 percent bigger, 0.8 for 20 percent smaller, " +
							"2.0 for double size, 0.5 for half size. Must be between 0.1 and 5.0.",
						"minimum": MinScaleFactor,
						"maximum": MaxScaleFactor,
					},
				},
				"required": []any{"scaleFactor"},
			},
		},
		{
			Name:        ToolModify,
			Description: "Change the color of the furniture object that the user is currently pointing at (e.g. 'make it blue').",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"color": map[string]any{
						"type":        "string",
						"enum":        colors,
						"description": "New color to apply.",
					},
				},
				"required": []any{"color"},
			},
		},
	}
}

func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
