package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	RunKind      = "run"
	JobKind      = "job"
	ProgressKind = "progress"

	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}

	pluralKinds = map[string]string{
		RunKind:      "runs",
		JobKind:      "jobs",
		ProgressKind: "progress",
	}
)

// parseAndValidateKindId splits KIND[/ID]. The id is nil when omitted.
func parseAndValidateKindId(arg string, allowed ...string) (string, *int64, error) {
	kind, rawID, _ := strings.Cut(arg, "/")
	kind = singular(kind)
	if _, ok := pluralKinds[kind]; !ok || (len(allowed) > 0 && !funk.ContainsString(allowed, kind)) {
		return "", nil, fmt.Errorf("invalid resource kind: %s", kind)
	}
	if rawID == "" {
		return kind, nil, nil
	}
	id, err := parseID(rawID)
	if err != nil {
		return "", nil, err
	}
	return kind, &id, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// parseItemRef parses TYPE/ID, e.g. document/12.
func parseItemRef(arg string) (model.ItemRef, error) {
	rawType, rawID, found := strings.Cut(arg, "/")
	if !found {
		return model.ItemRef{}, fmt.Errorf("item must be TYPE/ID, got %q", arg)
	}
	t, err := model.ParseJobType(rawType)
	if err != nil {
		return model.ItemRef{}, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return model.ItemRef{}, err
	}
	return model.ItemRef{Type: t, ID: id}, nil
}

func singular(kind string) string {
	for singular, plural := range pluralKinds {
		if kind == plural {
			return singular
		}
	}
	return kind
}

func plural(kind string) string {
	return pluralKinds[kind]
}

func validateOutput(output string) error {
	if len(output) > 0 && !funk.ContainsString(legalOutputTypes, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// printResponse writes v as json or yaml, or as the table drawn by table.
func printResponse(out io.Writer, output string, v any, table func(w *tabwriter.Writer)) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Fprintf(out, "%s", string(marshalled))
		return nil
	default:
		w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
		table(w)
		return w.Flush()
	}
}

func printRunsTable(w *tabwriter.Writer, runs ...model.Run) {
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tTARGETS\tFORCE\tCREATED")
	for _, r := range runs {
		rc := r.Configuration()
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.Status, rc.SourceLanguage, strings.Join(rc.TargetLanguages, ","), rc.Force, r.CreatedAt.Format(time.RFC3339))
	}
}

func printJobsTable(w *tabwriter.Writer, jobs ...model.Job) {
	fmt.Fprintln(w, "ID\tSTATUS\tITEM\tSUBTYPE\tLANG\tRUN\tTARGET")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s/%d\t%s\t%s>%s\t%s\t%s\n", j.ID, j.Status, j.Type, j.SourceID, j.Subtype, j.SourceLang, j.TargetLang, optional(j.RunID), optional(j.TargetID))
	}
}

func optional(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
