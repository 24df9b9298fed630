// Package templates renders the files clusterprep writes whole: Nagios
// object definitions, the NRPE xinetd service and the starter cluster file.
package templates

import (
	"bytes"
	"text/template"
)

// NagiosHost is one monitored host.
type NagiosHost struct {
	Name    string
	Address string
}

// NagiosService is one NRPE check run against every monitored host.
type NagiosService struct {
	Description string
	Command     string
}

// NagiosData is the data of the Nagios object templates.
type NagiosData struct {
	// Use is the host template every host definition inherits from.
	Use      string
	Hosts    []NagiosHost
	Services []NagiosService
}

const nagiosHostsTemplateStr = `# Managed by clusterprep.
{{- range .Hosts}}

define host {
	use        {{$.Use}}
	host_name  {{.Name}}
	alias      {{.Name}}
	address    {{.Address}}
}
{{- end}}
`

const nagiosServicesTemplateStr = `# Managed by clusterprep.
{{- range $h := .Hosts}}{{range $.Services}}

define service {
	use                  generic-service
	host_name            {{$h.Name}}
	check_interval       1
	service_description  {{.Description}}
	check_command        check_nrpe!{{.Command}}
}
{{- end}}{{end}}
`

var (
	nagiosHostsTemplate    = template.Must(template.New("hosts.cfg").Option("missingkey=error").Parse(nagiosHostsTemplateStr))
	nagiosServicesTemplate = template.Must(template.New("services.cfg").Option("missingkey=error").Parse(nagiosServicesTemplateStr))
)

// GenerateNagiosHosts renders one host definition per host.
func GenerateNagiosHosts(data NagiosData) (string, error) {
	return execute(nagiosHostsTemplate, data)
}

// GenerateNagiosServices renders every service for every host.
func GenerateNagiosServices(data NagiosData) (string, error) {
	return execute(nagiosServicesTemplate, data)
}

// NagiosCommandsData is the data of the command definitions.
type NagiosCommandsData struct {
	// PNPDir is the PNP4Nagios prefix the perfdata files are spooled to.
	PNPDir string
}

const nagiosCommandsTemplateStr = `# Managed by clusterprep.

define command {
	command_name  check_nrpe
	command_line  $USER1$/check_nrpe -H $HOSTADDRESS$ -c $ARG1$
}

define command {
	command_name  process-service-perfdata-file
	command_line  /bin/mv {{.PNPDir}}/var/service-perfdata {{.PNPDir}}/var/spool/service-perfdata.$TIMET$
}

define command {
	command_name  process-host-perfdata-file
	command_line  /bin/mv {{.PNPDir}}/var/host-perfdata {{.PNPDir}}/var/spool/host-perfdata.$TIMET$
}
`

// XinetdData is the data of the NRPE xinetd service.
type XinetdData struct {
	Port   int
	User   string
	Group  string
	Server string
	Config string
	// OnlyFrom lists the addresses allowed to connect.
	OnlyFrom []string
}

const xinetdTemplateStr = `# Managed by clusterprep.
service nrpe
{
	flags           = REUSE
	socket_type     = stream
	port            = {{.Port}}
	wait            = no
	user            = {{.User}}
	group           = {{.Group}}
	server          = {{.Server}}
	server_args     = -c {{.Config}} --inetd
	log_on_failure  += USERID
	disable         = no
	only_from       ={{range .OnlyFrom}} {{.}}{{end}}
}
`

var (
	nagiosCommandsTemplate = template.Must(template.New("commands.cfg").Option("missingkey=error").Parse(nagiosCommandsTemplateStr))
	xinetdTemplate         = template.Must(template.New("xinetd").Option("missingkey=error").Parse(xinetdTemplateStr))
)

// GenerateNagiosCommands renders the check_nrpe and perfdata commands.
func GenerateNagiosCommands(data NagiosCommandsData) (string, error) {
	return execute(nagiosCommandsTemplate, data)
}

// GenerateXinetd renders the xinetd service running the NRPE daemon.
func GenerateXinetd(data XinetdData) (string, error) {
	return execute(xinetdTemplate, data)
}

// ClusterFileData contains data for the starter cluster file.
type ClusterFileData struct {
	Name  string
	User  string
	Hosts []string
}

const clusterFileTemplateStr = `# clusterprep cluster file.
name: {{.Name}}

ssh:
  user: {{.User}}
  # ssh_key: ~/.ssh/id_rsa
  # sudo: true

backup:
  # numeric (default) or lexicographic
  ordering: numeric

execution:
  strategy: parallel
  max_parallel: 10

hosts:
{{- range $i, $h := .Hosts}}
  - id: {{$h}}
{{- if eq $i 0}}
    roles: [master, namenode, resourcemanager, jobhistory]
{{- else}}
    roles: [slave]
{{- end}}
{{- end}}

hadoop:
  version: 2.2.0
  core_site: {}
  yarn_site:
    yarn.nodemanager.aux-services: mapreduce_shuffle
  mapred_site:
    mapreduce.framework.name: yarn
`

var clusterFileTemplate = template.Must(template.New("cluster").Parse(clusterFileTemplateStr))

// GenerateClusterFile generates a starter clusterprep.yaml.
func GenerateClusterFile(data ClusterFileData) (string, error) {
	return execute(clusterFileTemplate, data)
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
