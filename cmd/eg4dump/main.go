// eg4dump logs in, lists the account's inverters and dumps one snapshot of
// runtime, energy and battery data. Useful for checking credentials and for
// spotting API fields the record types don't map yet.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/eg4monitor/eg4monitor/pkg/eg4"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"

	"github.com/levenlabs/go-lflag"
)

func main() {
	client := eg4.Configured()
	lflag.Configure()

	ctx := context.Background()
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "login failed", "error", err)
		os.Exit(1)
	}

	for i, inv := range client.Inverters() {
		log.Ctx(ctx).InfoContext(ctx, "found inverter",
			slog.Int("index", i),
			slog.String("serialNum", inv.SerialNum),
			slog.String("plantId", inv.PlantID),
			slog.String("plantName", inv.PlantName),
		)
	}

	if _, serialNum := client.Selection(); serialNum == "" {
		if err := client.SelectInverterIndex(0); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to select inverter", "error", err)
			os.Exit(1)
		}
	}

	rd, fail, err := client.Runtime(ctx, true)
	if !dumped(ctx, "runtime", fail, err) {
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "runtime",
		slog.String("status", rd.StatusText),
		slog.Float64("soc", rd.BatterySOC),
		slog.Float64("ppv", rd.Ppv),
		slog.Float64("pCharge", rd.PCharge),
		slog.Float64("pDisCharge", rd.PDischarge),
		slog.Float64("pToGrid", rd.PToGrid),
		slog.Float64("pToUser", rd.PToUser),
		slog.Int("extraFields", len(rd.Extra)),
	)

	ed, fail, err := client.Energy(ctx, true)
	if !dumped(ctx, "energy", fail, err) {
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "energy",
		slog.Float64("todayYieldingKWH", ed.TodayYielding),
		slog.Float64("totalYieldingKWH", ed.TotalYielding),
		slog.Float64("todayUsageKWH", ed.TodayUsage),
		slog.Int("extraFields", len(ed.Extra)),
	)

	bd, fail, err := client.Battery(ctx, true)
	if !dumped(ctx, "battery", fail, err) {
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "battery",
		slog.Float64("remainCapacity", bd.RemainCapacity),
		slog.Float64("fullCapacity", bd.FullCapacity),
		slog.Int("totalNumber", bd.TotalNumber),
		slog.Int("extraFields", len(bd.Extra)),
	)
	for _, unit := range bd.Units {
		log.Ctx(ctx).InfoContext(ctx, "battery unit",
			slog.String("batterySn", unit.BatterySN),
			slog.Float64("voltage", unit.Voltage),
			slog.Float64("soc", unit.SOC),
			slog.Float64("soh", unit.SOH),
			slog.Int("cycleCnt", unit.CycleCount),
		)
	}
}

func dumped(ctx context.Context, endpoint string, fail *types.APIResponse, err error) bool {
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "fetch failed", slog.String("endpoint", endpoint), "error", err)
		return false
	}
	if fail != nil {
		log.Ctx(ctx).ErrorContext(ctx, "vendor rejected request",
			slog.String("endpoint", endpoint),
			slog.String("message", fail.ErrorMessage),
		)
		return false
	}
	return true
}
