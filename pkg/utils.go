package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// rootMarkers identify a project root, in order of preference
var rootMarkers = []string{"assets.star", "assets.toml", "package.json", ".git"}

// FindProjectRoot walks up from start until it finds a directory containing a pipeline script,
// a config file, a package.json or a .git directory. Without any marker start itself is returned.
func FindProjectRoot(start string) (string, error) {
	start, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrap(err, "Failed to resolve the start directory")
	}

	for _, marker := range rootMarkers {
		path := start
		for {
			_, err := os.Stat(filepath.Join(path, marker))
			if err == nil {
				return path, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrap(err, "Error ocurred while searching for project root")
			}

			parent := filepath.Dir(path)
			if parent == path {
				break
			}
			path = parent
		}
	}

	return start, nil
}

var colors = colorstring.Colorize{
	Colors:  colorstring.DefaultColors,
	Disable: os.Getenv("NO_COLOR") != "",
	Reset:   true,
}

// Output is where the banners are printed
var Output io.Writer = os.Stdout

func PrintTask(msg string) {
	fmt.Fprint(Output, colors.Color("[blue][bold]==>[default] "+msg+"\n"))
}

func PrintSubtask(msg string) {
	fmt.Fprint(Output, colors.Color("[green][bold]  ->[reset] "+msg+"\n"))
}

func PrintError(msg string) {
	fmt.Fprint(Output, colors.Color("[red][bold]  ->[reset] "+msg+"\n"))
}
