// Command elenc-zenith-client connects to a zenith server and prints the
// angle it reports.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/keisuke0821/elenc/internal/zenithnet"
)

func main() {
	addr := flag.String("addr", "localhost:9876", "zenith server address")
	timeout := flag.Duration("timeout", 5*time.Second, "dial and round-trip timeout")
	flag.Parse()

	c, err := zenithnet.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "elenc-zenith-client: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	z, err := c.GetZenith()
	if err != nil {
		fmt.Fprintf(os.Stderr, "elenc-zenith-client: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%.3f\n", z)
}
