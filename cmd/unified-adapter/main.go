// Command unified-adapter serves catalog tools over MCP and a JSON admin API.
package main

import "github.com/AutomatosAI/automatos-unified-adapter/cmd/unified-adapter/cmd"

func main() {
	cmd.Execute()
}
