package cluster

import (
	"strings"
	"text/template"

	"github.com/felixgeelhaar/clusterprep/internal/domain/fleet/transport"
)

// templateFuncs are available to every command template.
var templateFuncs = template.FuncMap{
	// quote makes a value a single shell word.
	"quote": transport.Quote,
	"join":  strings.Join,
}

func parseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).
		Option("missingkey=error").
		Funcs(templateFuncs).
		Parse(text)
}

// RenderCommand renders a command template against data, which is an
// explicit struct or map. Unknown fields and missing map keys are errors.
func RenderCommand(text string, data interface{}) (string, error) {
	tmpl, err := parseTemplate("command", text)
	if err != nil {
		return "", NewTemplateError(text, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", NewTemplateError(text, err)
	}
	return b.String(), nil
}

// PackageData is the data of packages.install.
type PackageData struct {
	Package string
}

// InstallCommands renders the install command once per package.
func (c PackagesConfig) InstallCommands(packages []string) ([]string, error) {
	out := make([]string, 0, len(packages))
	for _, p := range packages {
		cmd, err := RenderCommand(c.Install, PackageData{Package: p})
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// DiscoveryData is the data of discovery.command.
type DiscoveryData struct {
	Interface string
}

// HadoopData is the data of hadoop.package_url.
type HadoopData struct {
	Version string
}
