package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagListenAddress string
	flagLogLevel      string
	flagEnableIPv6    bool
	flagHelp          bool
	flagVersion       bool
)

func init() {
	flag.StringVarP(&flagListenAddress, "listen", "l", ":8443", "Signaling WebSocket listen address")
	flag.StringVarP(&flagLogLevel, "log-level", "L", "", "Override LOGLEVEL (error, warn, info, debug, trace)")
	flag.BoolVarP(&flagEnableIPv6, "enable-ipv6", "6", false, "Permit IPv6 ICE candidates")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `ICE controller daemon

Usage: icecored [OPTION]...

Network:
  -l, --listen=ADDR      Signaling WebSocket listen address (default: :8443)
  -6, --enable-ipv6      Permit IPv6 ICE candidates (default: disabled)

Logging:
  -L, --log-level=LEVEL  Override LOGLEVEL (error, warn, info, debug, trace)

Configuration is otherwise supplied via environment variables:
  ICECORE_REGION, ICECORE_CHANNEL_NAME, ICECORE_ACCESS_KEY_ID,
  ICECORE_SECRET_ACCESS_KEY, ICECORE_CA_BUNDLE_PATH, ICECORE_MAX_VIEWERS

Miscellaneous:
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits`

// help prints usage information and exits.
func help() {
	i := color.New(color.FgCyan)
	c := color.New(color.FgBlue)

	//  _                                 _
	// (_)  ___   ___  ___  ___   _ __ ___  __| |
	// | | / __| / _ \/ __|/ _ \ | '__/ _ \/ _` |
	// | || (__ |  __/ (__| (_) || | |  __/ (_| |
	// |_| \___| \___|\___|\___/ |_|  \___|\__,_|

	i.Printf(" _                                 ")
	c.Println(" _")
	i.Printf("(_)  ___   ___  ___  ___   _ __ ___  ")
	c.Println("__| |")
	i.Printf("| | / __| / _ \\/ __|/ _ \\ | '__/ _ \\/ ")
	c.Println("_` |")
	i.Printf("| || (__ |  __/ (__| (_) || | |  __/ (")
	c.Println("_| |")
	i.Printf("|_| \\___| \\___|\\___|\\___/ |_|  \\___|\\")
	c.Println("__,_|")

	fmt.Println(helpString)
}

func version() {
	fmt.Println("icecored (icecore) development build")
}
