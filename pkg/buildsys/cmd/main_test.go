package cmd

import (
	"bytes"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/yehorDorosh/mne-travel/pkg/buildsys"
)

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	tasks := buildsys.TaskList{
		"styles": {Short: "styles", Desc: "Compile the stylesheets"},
		"build":  {Short: "build", Desc: "Build everything"},
	}
	options := map[string]buildsys.ScriptOption{
		"dest": {DefaultValue: starlark.String("//dest"), Help: "output directory"},
	}

	printTasks(&buf, tasks, options)

	out := buf.String()
	build := strings.Index(out, " * build:")
	styles := strings.Index(out, " * styles:")
	if build < 0 || styles < 0 || build > styles {
		t.Errorf("tasks are missing or unsorted:\n%s", out)
	}
	if !strings.Contains(out, " * dest=//dest\n     output directory") {
		t.Errorf("options are missing:\n%s", out)
	}
}
