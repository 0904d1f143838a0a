// Command gwusb-tool is an interactive harness for exercising a gwusb.Client
// against a real GW-USB-xx gateway, descended from gopper's own
// host/cmd/gopper-host interactive loop.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"gwusb"
	"gwusb/frame"
)

var device = flag.String("device", "/dev/ttyACM0", "Serial device path")

func main() {
	flag.Parse()

	fmt.Println("gwusb-tool - GW-USB-xx programming protocol harness")
	fmt.Println("=====================================================")

	fmt.Printf("Connecting to %s...\n", *device)
	client, err := gwusb.Open(*device, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println("Connected.")
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not tokenize input: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if !dispatch(client, args) {
			fmt.Println("Goodbye!")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// dispatch runs one command. It returns false when the session should end.
func dispatch(c *gwusb.Client, args []string) bool {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "quit", "exit", "q":
		return false

	case "help", "?":
		printHelp()

	case "test":
		ok, err := c.Test()
		report("test", err, func() { fmt.Printf("ok=%t\n", ok) })

	case "reset-usb":
		err := c.ResetUsb()
		report("reset-usb", err, nil)

	case "reset-tr":
		err := c.ResetTr()
		report("reset-tr", err, nil)

	case "usb-info":
		info, err := c.UsbInfo()
		report("usb-info", err, func() { fmt.Println(info.String()) })

	case "tr-info":
		info, err := c.TrInfo()
		report("tr-info", err, func() { fmt.Println(info.String()) })

	case "indicate":
		err := c.IndicateConnectivity()
		report("indicate", err, nil)

	case "spi-status":
		status, err := c.SpiStatus()
		report("spi-status", err, func() { fmt.Println(status.String()) })

	case "send":
		cmdSend(c, rest)

	case "switch-custom":
		err := c.SwitchToCustom()
		report("switch-custom", err, nil)

	case "enter-prog":
		result, err := c.EnterProgMode()
		report("enter-prog", err, func() { fmt.Println(result.String()) })

	case "exit-prog":
		result, err := c.ExitProgMode()
		report("exit-prog", err, func() { fmt.Println(result.String()) })

	case "upload":
		cmdUpload(c, rest)

	case "download":
		cmdDownload(c, rest)

	case "listen":
		c.RegisterAsyncListener(func(payload []byte) {
			fmt.Printf("[async] %s\n", hex.EncodeToString(payload))
		})
		fmt.Println("listening for async data (unregister with 'unlisten')")

	case "unlisten":
		c.UnregisterAsyncListener()

	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
	}

	return true
}

func cmdSend(c *gwusb.Client, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: send <hex bytes>")
		return
	}
	payload, err := parseHexBytes(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	result, err := c.SendData(payload)
	report("send", err, func() { fmt.Println(result.String()) })
}

func cmdUpload(c *gwusb.Client, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: upload <target hex byte> <hex bytes>")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	payload, err := parseHexBytes(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	result, err := c.Upload(target, payload)
	report("upload", err, func() { fmt.Println(result.String()) })
}

func cmdDownload(c *gwusb.Client, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: download <target hex byte> <hex bytes in> <out-cap>")
		return
	}
	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	in, err := parseHexBytes(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	cap64, err := strconv.Atoi(args[2])
	if err != nil || cap64 < 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid out-cap %q\n", args[2])
		return
	}

	out := make([]byte, cap64)
	result, n, err := c.Download(target, in, out)
	report("download", err, func() {
		fmt.Printf("%s (%d bytes): %s\n", result.String(), n, hex.EncodeToString(out[:n]))
	})
}

func parseTarget(s string) (frame.TargetCode, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid target code %q: %w", s, err)
	}
	return frame.TargetCode(v), nil
}

// parseHexBytes accepts "AABBCC" or "AA:BB:CC" forms.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, ":", "")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return b, nil
}

func report(op string, err error, onSuccess func()) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", op, err)
		return
	}
	if onSuccess != nil {
		onSuccess()
	}
}

func printHelp() {
	fmt.Println(`
Available commands:
  test                                 - probe the gateway
  reset-usb                            - reset the gateway's USB side
  reset-tr                             - reset the attached TR module
  usb-info                             - read gateway identification
  tr-info                              - read TR module identification
  indicate                             - blink the connectivity LED
  spi-status                           - read SPI link status
  send <hex bytes>                     - send application data
  switch-custom                        - switch to custom pass-through mode
  enter-prog / exit-prog               - toggle TR programming mode
  upload <target> <hex bytes>          - write a TR memory region
  download <target> <hex in> <out-cap> - read a TR memory region
  listen / unlisten                    - (un)register the async data listener
  help                                 - show this help message
  quit/exit/q                          - exit the program`)
}
