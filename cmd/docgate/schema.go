package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/presenter"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// generateSchema reflects the JSON schema of T with every definition inlined
func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// schemas maps a document kind to its schema generator
var schemas = map[string]func() *jsonschema.Schema{
	"state":    generateSchema[reviewtypes.ReviewState],
	"response": generateSchema[reviewtypes.Response],
	"sections": generateSchema[[]reviewtypes.SectionTemplate],
	"summary":  generateSchema[reviewtypes.ReviewSummary],
	"question": generateSchema[reviewtypes.GapQuestion],
}

func schemaKinds() []string {
	kinds := make([]string, 0, len(schemas))
	for k := range schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// schemaFor renders the indented JSON schema of a document kind
func schemaFor(kind string) (string, error) {
	gen, ok := schemas[strings.ToLower(kind)]
	if !ok {
		return "", errors.Errorf("unknown schema %q, expected one of %s", kind, strings.Join(schemaKinds(), ", "))
	}
	data, err := json.MarshalIndent(gen(), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode schema")
	}
	return string(data), nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema <kind>",
	Short: "Print the JSON schema of a docgate document",
	Long: fmt.Sprintf(`Print the JSON schema of a stored run state, an answers file, a skill's
sections.yaml, a review summary or a gap question.

Kinds: %s

Examples:
  docgate schema response > answers.schema.json
  docgate schema sections`, strings.Join(schemaKinds(), ", ")),
	Args: cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		out, err := schemaFor(args[0])
		if err != nil {
			presenter.Error(err, "Failed to generate schema")
			os.Exit(1)
		}
		fmt.Println(out)
	},
}
