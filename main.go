// Command donkey runs the crawl agents.
//
// Each agent invocation performs one unit of work against the shared progress
// store: a discovery step that pages through the active category and fills
// the frontier, or an extraction step that turns one listing URL into a
// record. `donkey herd` keeps a pool of agents looping over the frontier until
// the stop sentinel retires them; `donkey serve` adds the HTTP API.
package main

import (
	"github.com/JakeFAU/donkey-crawler/cmd"
)

func main() {
	cmd.Execute()
}
