// Package cli implements halctl, a command line for poking at the buses of a board.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/hal/board"
	"go.viam.com/hal/logging"
	"go.viam.com/hal/platform/linux"
)

const (
	flagConfig         = "config"
	flagDebug          = "debug"
	flagTrace          = "trace"
	flagGPIOChip       = "gpio-chip"
	flagWatchdogDevice = "watchdog-device"

	flagBus      = "bus"
	flagAddr     = "addr"
	flagReg      = "reg"
	flagLen      = "len"
	flagPin      = "pin"
	flagPort     = "port"
	flagCount    = "count"
	flagInterval = "interval"
	flagTimeout  = "timeout"
)

// BoardOpener builds the board a command runs against.
type BoardOpener func(c *cli.Context, conf *board.Config, logger logging.Logger) (*board.Board, error)

// OpenLinuxBoard builds the board on the Linux platform.
func OpenLinuxBoard(c *cli.Context, conf *board.Config, logger logging.Logger) (*board.Board, error) {
	drivers, err := linux.New(linux.Options{
		GPIOChip:       c.String(flagGPIOChip),
		WatchdogDevice: c.String(flagWatchdogDevice),
	}, logger)
	if err != nil {
		return nil, err
	}
	return board.New(c.Context, conf, drivers, logger)
}

// NewApp returns a new app with the halctl commands, Writer set to out, and ErrWriter set to
// errOut. A nil open selects OpenLinuxBoard.
func NewApp(out, errOut io.Writer, open BoardOpener) *cli.App {
	if open == nil {
		open = OpenLinuxBoard
	}
	r := &runner{open: open}

	busFlag := &cli.StringFlag{Name: flagBus, Usage: "name of the bus in the board config", Required: true}
	addrFlag := &cli.StringFlag{Name: flagAddr, Usage: "device address, for example 0x50", Required: true}
	lenFlag := &cli.IntFlag{Name: flagLen, Usage: "number of bytes to read", Value: 1}
	pinFlag := &cli.StringFlag{Name: flagPin, Usage: "name of the pin in the board config", Required: true}
	portFlag := &cli.StringFlag{Name: flagPort, Usage: "name of the port in the board config", Required: true}

	return &cli.App{
		Name:            "halctl",
		Usage:           "access the buses of a board",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagConfig,
				Aliases:  []string{"c"},
				Usage:    "load the board configuration from `FILE`",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagTrace,
				Usage: "log every bus operation of the command under `NAME`, whatever the log level",
			},
			&cli.StringFlag{
				Name:  flagGPIOChip,
				Value: linux.DefaultGPIOChip,
				Usage: "GPIO character device",
			},
			&cli.StringFlag{
				Name:  flagWatchdogDevice,
				Value: linux.DefaultWatchdogDevice,
				Usage: "watchdog device",
			},
		},
		Before: r.before,
		Commands: []*cli.Command{
			{
				Name:            "i2c",
				Usage:           "talk to I2C devices",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "detect",
						Usage:  "list the 7-bit addresses that acknowledge",
						Flags:  []cli.Flag{busFlag},
						Action: r.i2cDetectAction,
					},
					{
						Name:   "read",
						Usage:  "read bytes from a device",
						Flags:  []cli.Flag{busFlag, addrFlag, lenFlag},
						Action: r.i2cReadAction,
					},
					{
						Name:      "write",
						Usage:     "write bytes to a device",
						ArgsUsage: "<byte>...",
						Flags:     []cli.Flag{busFlag, addrFlag},
						Action:    r.i2cWriteAction,
					},
					{
						Name:  "regread",
						Usage: "read from a register with a repeated start",
						Flags: []cli.Flag{
							busFlag, addrFlag, lenFlag,
							&cli.StringFlag{Name: flagReg, Usage: "register address", Required: true},
						},
						Action: r.i2cRegReadAction,
					},
				},
			},
			{
				Name:            "gpio",
				Usage:           "read and drive pins",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "get",
						Usage:  "print the level of a pin",
						Flags:  []cli.Flag{pinFlag},
						Action: r.gpioGetAction,
					},
					{
						Name:      "set",
						Usage:     "drive an output pin",
						ArgsUsage: "<0|1>",
						Flags:     []cli.Flag{pinFlag},
						Action:    r.gpioSetAction,
					},
				},
			},
			{
				Name:            "spi",
				Usage:           "run SPI transfers",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:      "xfer",
						Usage:     "clock bytes out and print what came back",
						ArgsUsage: "<byte>...",
						Flags:     []cli.Flag{busFlag},
						Action:    r.spiXferAction,
					},
				},
			},
			{
				Name:            "uart",
				Usage:           "send and receive on serial ports",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:      "send",
						Usage:     "write text to a port",
						ArgsUsage: "<text>",
						Flags:     []cli.Flag{portFlag},
						Action:    r.uartSendAction,
					},
					{
						Name:  "recv",
						Usage: "read bytes from a port",
						Flags: []cli.Flag{
							portFlag, lenFlag,
							&cli.DurationFlag{Name: flagTimeout, Usage: "how long to wait for the bytes", Value: defaultRecvTimeout},
						},
						Action: r.uartRecvAction,
					},
				},
			},
			{
				Name:            "wdt",
				Usage:           "exercise the watchdog",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "feed",
						Usage: "enable the watchdog, feed it, and stop it again",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: flagCount, Usage: "number of feeds", Value: 1},
							&cli.DurationFlag{Name: flagInterval, Usage: "time between feeds", Value: defaultFeedInterval},
						},
						Action: r.wdtFeedAction,
					},
				},
			},
		},
	}
}

