package exporter

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// Source is the slice of the EG4 client the collector scrapes. The client
// satisfies it directly.
type Source interface {
	Runtime(ctx context.Context, captureExtra bool) (*types.RuntimeData, *types.APIResponse, error)
	Energy(ctx context.Context, captureExtra bool) (*types.EnergyData, *types.APIResponse, error)
	Battery(ctx context.Context, captureExtra bool) (*types.BatteryData, *types.APIResponse, error)
}

// Collector implements prometheus.Collector over a single inverter. Every
// scrape fetches runtime, energy and battery data; an endpoint that fails
// (hard error or vendor-reported failure) only zeroes its own
// eg4_scrape_success series.
type Collector struct {
	src       Source
	serialNum string

	soc            *prometheus.Desc
	pvPower        *prometheus.Desc
	chargePower    *prometheus.Desc
	dischargePower *prometheus.Desc
	batteryVoltage *prometheus.Desc
	acVoltage      *prometheus.Desc
	acFrequency    *prometheus.Desc
	gridExport     *prometheus.Desc
	gridImport     *prometheus.Desc
	epsPower       *prometheus.Desc
	innerTemp      *prometheus.Desc
	radiatorTemp   *prometheus.Desc
	info           *prometheus.Desc

	energyToday *prometheus.Desc
	energyTotal *prometheus.Desc

	remainCapacity *prometheus.Desc
	fullCapacity   *prometheus.Desc
	unitVoltage    *prometheus.Desc
	unitCurrent    *prometheus.Desc
	unitSOC        *prometheus.Desc
	unitSOH        *prometheus.Desc
	unitCycles     *prometheus.Desc

	scrapeSuccess *prometheus.Desc
}

// NewCollector returns a collector for the inverter with the given serial.
// The serial is only a label; the source's selection decides what is
// actually fetched.
func NewCollector(src Source, serialNum string) *Collector {
	serial := []string{"serial"}
	return &Collector{
		src:       src,
		serialNum: serialNum,
		soc: prometheus.NewDesc(
			"eg4_battery_soc_percent",
			"Battery state of charge in percent",
			serial, nil,
		),
		pvPower: prometheus.NewDesc(
			"eg4_pv_power_watts",
			"Total solar production in watts",
			serial, nil,
		),
		chargePower: prometheus.NewDesc(
			"eg4_battery_charge_power_watts",
			"Battery charge power in watts",
			serial, nil,
		),
		dischargePower: prometheus.NewDesc(
			"eg4_battery_discharge_power_watts",
			"Battery discharge power in watts",
			serial, nil,
		),
		batteryVoltage: prometheus.NewDesc(
			"eg4_battery_voltage_volts",
			"Battery bus voltage in volts",
			serial, nil,
		),
		acVoltage: prometheus.NewDesc(
			"eg4_ac_voltage_volts",
			"Grid AC voltage in volts",
			serial, nil,
		),
		acFrequency: prometheus.NewDesc(
			"eg4_ac_frequency_hertz",
			"Grid AC frequency in hertz",
			serial, nil,
		),
		gridExport: prometheus.NewDesc(
			"eg4_grid_export_watts",
			"Power exported to the grid in watts",
			serial, nil,
		),
		gridImport: prometheus.NewDesc(
			"eg4_grid_import_watts",
			"Power imported from the grid in watts",
			serial, nil,
		),
		epsPower: prometheus.NewDesc(
			"eg4_eps_power_watts",
			"Off-grid (EPS) output power in watts",
			serial, nil,
		),
		innerTemp: prometheus.NewDesc(
			"eg4_internal_temperature_celsius",
			"Inverter internal temperature in celsius",
			serial, nil,
		),
		radiatorTemp: prometheus.NewDesc(
			"eg4_radiator_temperature_celsius",
			"Inverter radiator temperature in celsius",
			[]string{"serial", "radiator"}, nil,
		),
		info: prometheus.NewDesc(
			"eg4_inverter_info",
			"Inverter status information",
			[]string{"serial", "status"}, nil,
		),
		energyToday: prometheus.NewDesc(
			"eg4_energy_today_kwh",
			"Energy accumulated today per flow in kWh",
			[]string{"serial", "flow"}, nil,
		),
		energyTotal: prometheus.NewDesc(
			"eg4_energy_total_kwh",
			"Lifetime energy per flow in kWh",
			[]string{"serial", "flow"}, nil,
		),
		remainCapacity: prometheus.NewDesc(
			"eg4_battery_remaining_capacity_ah",
			"Remaining battery capacity in amp-hours",
			serial, nil,
		),
		fullCapacity: prometheus.NewDesc(
			"eg4_battery_full_capacity_ah",
			"Full battery capacity in amp-hours",
			serial, nil,
		),
		unitVoltage: prometheus.NewDesc(
			"eg4_battery_unit_voltage_volts",
			"Battery module voltage in volts",
			[]string{"serial", "battery_sn"}, nil,
		),
		unitCurrent: prometheus.NewDesc(
			"eg4_battery_unit_current_amps",
			"Battery module current in amps",
			[]string{"serial", "battery_sn"}, nil,
		),
		unitSOC: prometheus.NewDesc(
			"eg4_battery_unit_soc_percent",
			"Battery module state of charge in percent",
			[]string{"serial", "battery_sn"}, nil,
		),
		unitSOH: prometheus.NewDesc(
			"eg4_battery_unit_soh_percent",
			"Battery module state of health in percent",
			[]string{"serial", "battery_sn"}, nil,
		),
		unitCycles: prometheus.NewDesc(
			"eg4_battery_unit_cycles",
			"Battery module cycle count",
			[]string{"serial", "battery_sn"}, nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			"eg4_scrape_success",
			"Whether scraping the given EG4 API endpoint succeeded",
			[]string{"serial", "endpoint"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.soc
	ch <- c.pvPower
	ch <- c.chargePower
	ch <- c.dischargePower
	ch <- c.batteryVoltage
	ch <- c.acVoltage
	ch <- c.acFrequency
	ch <- c.gridExport
	ch <- c.gridImport
	ch <- c.epsPower
	ch <- c.innerTemp
	ch <- c.radiatorTemp
	ch <- c.info
	ch <- c.energyToday
	ch <- c.energyTotal
	ch <- c.remainCapacity
	ch <- c.fullCapacity
	ch <- c.unitVoltage
	ch <- c.unitCurrent
	ch <- c.unitSOC
	ch <- c.unitSOH
	ch <- c.unitCycles
	ch <- c.scrapeSuccess
}

// Collect implements prometheus.Collector. The three endpoints are fetched
// sequentially since the source serializes requests anyway.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	c.collectRuntime(ctx, ch)
	c.collectEnergy(ctx, ch)
	c.collectBattery(ctx, ch)
}

func (c *Collector) collectRuntime(ctx context.Context, ch chan<- prometheus.Metric) {
	rd, fail, err := c.src.Runtime(ctx, false)
	if !c.scraped(ctx, ch, "runtime", fail, err) {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.soc, prometheus.GaugeValue, rd.BatterySOC, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.pvPower, prometheus.GaugeValue, rd.Ppv, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.chargePower, prometheus.GaugeValue, rd.PCharge, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.dischargePower, prometheus.GaugeValue, rd.PDischarge, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.batteryVoltage, prometheus.GaugeValue, rd.VBat, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.acVoltage, prometheus.GaugeValue, rd.Vac, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.acFrequency, prometheus.GaugeValue, rd.Fac, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.gridExport, prometheus.GaugeValue, rd.PToGrid, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.gridImport, prometheus.GaugeValue, rd.PToUser, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.epsPower, prometheus.GaugeValue, rd.PEps, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.innerTemp, prometheus.GaugeValue, rd.TInner, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.radiatorTemp, prometheus.GaugeValue, rd.TRadiator1, c.serialNum, "1")
	ch <- prometheus.MustNewConstMetric(c.radiatorTemp, prometheus.GaugeValue, rd.TRadiator2, c.serialNum, "2")
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, c.serialNum, rd.StatusText)
}

func (c *Collector) collectEnergy(ctx context.Context, ch chan<- prometheus.Metric) {
	ed, fail, err := c.src.Energy(ctx, false)
	if !c.scraped(ctx, ch, "energy", fail, err) {
		return
	}

	today := map[string]float64{
		"yield":     ed.TodayYielding,
		"charge":    ed.TodayCharging,
		"discharge": ed.TodayDischarging,
		"export":    ed.TodayExport,
		"import":    ed.TodayImport,
		"usage":     ed.TodayUsage,
	}
	total := map[string]float64{
		"yield":     ed.TotalYielding,
		"charge":    ed.TotalCharging,
		"discharge": ed.TotalDischarging,
		"export":    ed.TotalExport,
		"import":    ed.TotalImport,
		"usage":     ed.TotalUsage,
	}
	for flow, v := range today {
		ch <- prometheus.MustNewConstMetric(c.energyToday, prometheus.GaugeValue, v, c.serialNum, flow)
	}
	for flow, v := range total {
		ch <- prometheus.MustNewConstMetric(c.energyTotal, prometheus.CounterValue, v, c.serialNum, flow)
	}
}

func (c *Collector) collectBattery(ctx context.Context, ch chan<- prometheus.Metric) {
	bd, fail, err := c.src.Battery(ctx, false)
	if !c.scraped(ctx, ch, "battery", fail, err) {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.remainCapacity, prometheus.GaugeValue, bd.RemainCapacity, c.serialNum)
	ch <- prometheus.MustNewConstMetric(c.fullCapacity, prometheus.GaugeValue, bd.FullCapacity, c.serialNum)
	for _, unit := range bd.Units {
		sn := unit.BatterySN
		if sn == "" {
			sn = strconv.Itoa(unit.BatIndex)
		}
		ch <- prometheus.MustNewConstMetric(c.unitVoltage, prometheus.GaugeValue, unit.Voltage, c.serialNum, sn)
		ch <- prometheus.MustNewConstMetric(c.unitCurrent, prometheus.GaugeValue, unit.Current, c.serialNum, sn)
		ch <- prometheus.MustNewConstMetric(c.unitSOC, prometheus.GaugeValue, unit.SOC, c.serialNum, sn)
		ch <- prometheus.MustNewConstMetric(c.unitSOH, prometheus.GaugeValue, unit.SOH, c.serialNum, sn)
		ch <- prometheus.MustNewConstMetric(c.unitCycles, prometheus.CounterValue, float64(unit.CycleCount), c.serialNum, sn)
	}
}

// scraped emits the per-endpoint success gauge and reports whether the
// caller has data to emit.
func (c *Collector) scraped(ctx context.Context, ch chan<- prometheus.Metric, endpoint string, fail *types.APIResponse, err error) bool {
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "scrape failed",
			slog.String("endpoint", endpoint),
			slog.String("serialNum", c.serialNum),
			slog.Any("error", err),
		)
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, c.serialNum, endpoint)
		return false
	}
	if fail != nil {
		log.Ctx(ctx).WarnContext(ctx, "vendor rejected scrape",
			slog.String("endpoint", endpoint),
			slog.String("serialNum", c.serialNum),
			slog.String("message", fail.ErrorMessage),
		)
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, c.serialNum, endpoint)
		return false
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1, c.serialNum, endpoint)
	return true
}
