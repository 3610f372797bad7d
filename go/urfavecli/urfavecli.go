// Package urfavecli has utilities for working with the urfave/cli package.
package urfavecli

import (
	cli "github.com/urfave/cli/v2"

	"github.com/eocube/eocube/go/sklog"
)

// MarkdownDocTemplate is a replacement for cli.MarkdownDocTemplate that
// drops the man page preamble, so App.ToMarkdown output can be checked in
// as plain documentation.
const MarkdownDocTemplate = `# NAME

{{ .App.Name }}{{ if .App.Usage }} - {{ .App.Usage }}{{ end }}

# SYNOPSIS

{{ .App.Name }}
{{ if .SynopsisArgs }}
` + "```" + `
{{ range $v := .SynopsisArgs }}{{ $v }}{{ end }}` + "```" + `
{{ end }}{{ if .App.Description }}
# DESCRIPTION

{{ .App.Description }}
{{ end }}
**Usage**:

` + "```" + `
{{ if .App.UsageText }}{{ .App.UsageText }}{{ else }}{{ .App.Name }} [GLOBAL OPTIONS] [command [COMMAND OPTIONS]] [ARGUMENTS...]{{ end }}
` + "```" + `
{{ if .GlobalArgs }}
# GLOBAL OPTIONS
{{ range $v := .GlobalArgs }}
{{ $v }}{{ end }}
{{ end }}{{ if .Commands }}
# COMMANDS
{{ range $v := .Commands }}
{{ $v }}{{ end }}{{ end }}`

// LogFlags logs the name and value of every flag visible in the context.
// Call it at the top of a command's Action so each run records how it was
// invoked.
func LogFlags(c *cli.Context) {
	for _, name := range c.FlagNames() {
		sklog.Infof("Flags: --%s=%v", name, c.Value(name))
	}
}
