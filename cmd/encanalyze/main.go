package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/enc28j60/encwire"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "encanalyze - Process Binary Saleae digital data files corresponding to ENC28J60 transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI CLK data.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of ENC28J60 command transactions.")
	timings := flag.String("o-time", "", "Output timing data to a file corresponding to output command history line-by-line.")
	memHead := flag.Int("mem-head", 16, "Bytes of buffer memory transfers to print. Zero prints all.")
	omitMem := flag.Bool("omit-mem", false, "Omit buffer memory reads and writes.")
	verbose := flag.Bool("v", false, "Debug logging.")
	flag.Parse()
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	start := time.Now()
	txs, err := scanFiles(*clk, *enable, *mosi, *miso)
	if err != nil {
		fatal(logger, "scan", err)
	}
	logger.Debug("scanned", slog.Int("transactions", len(txs)))
	dec := decoder{memHead: *memHead}
	cmds := dec.process(txs, *omitMem)

	fp, err := os.Create(*output)
	if err != nil {
		fatal(logger, "create", err)
	}
	defer fp.Close()
	var tfp io.Writer
	if *timings != "" {
		f, err := os.Create(*timings)
		if err != nil {
			fatal(logger, "create", err)
		}
		defer f.Close()
		tfp = f
	}
	err = writeCommands(fp, tfp, cmds)
	if err != nil {
		fatal(logger, "write", err)
	}
	logger.Info("finished", slog.Int("commands", len(cmds)), slog.Duration("elapsed", time.Since(start)))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("err", err.Error()))
	os.Exit(1)
}

func scanFiles(fclk, fenable, fmosi, fmiso string) ([]analyzers.TxSPI, error) {
	clk, err := opendigital(fclk)
	if err != nil {
		return nil, err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return nil, err
	}
	mosi, err := opendigital(fmosi)
	if err != nil {
		return nil, err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return nil, err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)
	return txs, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return saleae.ReadDigitalFile(fp)
}

// process decodes the captured transactions and merges identical
// consecutive ones, which is how polling loops show up.
func (dec *decoder) process(txs []analyzers.TxSPI, omitMem bool) (cmds []encTx) {
	for i := 0; i < len(txs); i++ {
		cmd, ok := dec.decode(txs[i].SDO, txs[i].SDI)
		if !ok {
			continue
		}
		cmd.Num = 1
		cmd.Start = txs[i].StartTime()
		for i+1 < len(txs) && bytes.Equal(txs[i+1].SDO, txs[i].SDO) && bytes.Equal(txs[i+1].SDI, txs[i].SDI) {
			i++
			cmd.Num++
		}
		if omitMem && (cmd.Op == encwire.OpRBM || cmd.Op == encwire.OpWBM) {
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func writeCommands(w, timings io.Writer, cmds []encTx) error {
	for i := range cmds {
		_, err := fmt.Fprintln(w, cmds[i].String())
		if err != nil {
			return err
		}
		if timings != nil {
			fmt.Fprintf(timings, "t=%f\t%s\n", cmds[i].Start, cmds[i].Op)
		}
	}
	return nil
}
