package features

import (
	"fmt"
	"math"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
)

type ipHour struct {
	ip   string
	hour int
}

type ipMinute struct {
	ip     string
	minute int64
}

type ipAgent struct {
	ip string
	ua string
}

// Engineer computes every feature column for the batch. It never fails: malformed
// addresses and degenerate groups fall back to fixed substitutes, and an empty batch
// yields an empty frame. Row order of the output matches the input.
func Engineer(events []clicks.Event) *Frame {
	n := len(events)
	f := &Frame{
		Events:  events,
		Subnets: make([]string, n),
		Hours:   make([]int, n),
		columns: make(map[string][]float64, len(Columns)+len(Intermediates)),
	}

	ips := make([]string, n)
	agents := make([]string, n)
	countries := make([]string, n)
	clickCounts := make([]float64, n)
	ipInts := make([]float64, n)
	hourKeys := make([]ipHour, n)
	minuteKeys := make([]ipMinute, n)
	agentKeys := make([]ipAgent, n)

	parsed := make(map[string]netip.Addr)
	for i, ev := range events {
		addr, ok := parsed[ev.IP]
		if !ok {
			addr = parseIPv4(ev.IP)
			parsed[ev.IP] = addr
		}

		ips[i] = ev.IP
		agents[i] = ev.UserAgent
		countries[i] = ev.Country
		clickCounts[i] = float64(ev.Clicks)
		f.Subnets[i] = subnetOf(addr)
		f.Hours[i] = ev.Timestamp.Hour()
		ipInts[i] = ipToInt(addr)
		hourKeys[i] = ipHour{ip: ev.IP, hour: f.Hours[i]}
		minuteKeys[i] = ipMinute{ip: ev.IP, minute: ev.Timestamp.Truncate(time.Minute).Unix()}
		agentKeys[i] = ipAgent{ip: ev.IP, ua: ev.UserAgent}
	}

	clickRate := make([]float64, n)
	deviceMismatch := make([]float64, n)
	burstRate := make([]float64, n)
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	night := make([]float64, n)
	for i, ev := range events {
		impressions := ev.Impressions
		if impressions == 0 {
			impressions = 1
		}
		clickRate[i] = float64(ev.Clicks) / float64(impressions)
		deviceMismatch[i] = boolFloat(isDeviceMismatch(ev))

		h := float64(f.Hours[i])
		hourSin[i] = math.Sin(2 * math.Pi * h / 24)
		hourCos[i] = math.Cos(2 * math.Pi * h / 24)
		night[i] = boolFloat(f.Hours[i] <= 4)
	}

	clicksIn1Min := groupSum(minuteKeys, clickCounts)
	for i, ev := range events {
		burstRate[i] = clicksIn1Min[i] / float64(1+ev.Impressions)
	}

	interClick := interClickSeconds(events)
	shortInterclick := make([]float64, n)
	for i, gap := range interClick {
		shortInterclick[i] = boolFloat(gap < ShortInterclickSeconds)
	}

	countriesPerIP := groupNunique(ips, countries)
	geoTravel := threshold(countriesPerIP, 1)

	uaModeCount := groupCount(agentKeys)
	duplicateUA := threshold(uaModeCount, DuplicateUAThreshold)
	for i, ua := range agents {
		if ua == "" {
			duplicateUA[i] = 0
		}
	}

	clicksStd := groupStd(ips, clickCounts)
	for i, v := range clicksStd {
		if math.IsNaN(v) {
			clicksStd[i] = 0
		}
	}
	highVariance := threshold(clicksStd, HighVarianceThreshold)

	f.columns[ClickRate] = clickRate
	f.columns[ClicksPerIPHour] = groupSum(hourKeys, clickCounts)
	f.columns[ClicksPerSubnet] = groupSum(f.Subnets, clickCounts)
	f.columns[ClicksFromIPCount] = groupCount(ips)
	f.columns[DistinctUAPerIP] = groupNunique(ips, agents)
	f.columns[DeviceMismatch] = deviceMismatch
	f.columns[InterClickSeconds] = interClick
	f.columns[ShortInterclick] = shortInterclick
	f.columns[BurstRate] = burstRate
	f.columns[ImpossibleGeoTravel] = geoTravel
	f.columns[SubnetRepeatCount] = groupCount(f.Subnets)
	f.columns[UAEntropyIP] = groupEntropy(ips, agents)
	f.columns[HourSin] = hourSin
	f.columns[HourCos] = hourCos
	f.columns[AvgClicksPerImpressionIP] = groupMean(ips, clickRate)
	f.columns[DuplicateUAFlag] = duplicateUA
	f.columns[HighClickVariance] = highVariance
	f.columns[NightActivity] = night
	f.columns[IPInt] = ipInts
	// Same aggregation as clicks_in_1min; both names are part of the published data.
	f.columns[ClicksPerMin] = groupSum(minuteKeys, clickCounts)

	f.columns[ClicksIn1Min] = clicksIn1Min
	f.columns[CountriesPerIP] = countriesPerIP
	f.columns[UAModeCount] = uaModeCount
	f.columns[ClicksStdIP] = clicksStd

	for _, name := range Columns {
		sanitize(f.columns[name])
	}

	return f
}

// interClickSeconds returns, per row, the gap to the previous event of the same ip
// under a stable (ip, timestamp) order. Equal timestamps keep input order.
func interClickSeconds(events []clicks.Event) []float64 {
	order := make([]int, len(events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := events[order[a]], events[order[b]]
		if ea.IP != eb.IP {
			return ea.IP < eb.IP
		}
		return ea.Timestamp.Before(eb.Timestamp)
	})

	out := make([]float64, len(events))
	for pos, idx := range order {
		if pos == 0 || events[order[pos-1]].IP != events[idx].IP {
			out[idx] = FirstClickSentinel
			continue
		}
		out[idx] = events[idx].Timestamp.Sub(events[order[pos-1]].Timestamp).Seconds()
	}
	return out
}

// isDeviceMismatch flags a user agent that contradicts the reported device class.
func isDeviceMismatch(ev clicks.Event) bool {
	ua := strings.ToLower(ev.UserAgent)
	mobileUA := strings.Contains(ua, "iphone") || strings.Contains(ua, "android")
	return (mobileUA && ev.Device == clicks.DeviceDesktop) || (!mobileUA && ev.Device == clicks.DeviceMobile)
}

// parseIPv4 returns the zero Addr for anything that is not a dotted-quad.
func parseIPv4(s string) netip.Addr {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return netip.Addr{}
	}
	return addr
}

func subnetOf(addr netip.Addr) string {
	if !addr.IsValid() {
		return MalformedSubnet
	}
	b := addr.As4()
	return fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2])
}

func ipToInt(addr netip.Addr) float64 {
	if !addr.IsValid() {
		return 0
	}
	b := addr.As4()
	return float64(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

func threshold(values []float64, limit float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = boolFloat(v > limit)
	}
	return out
}

func sanitize(col []float64) {
	for i, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			col[i] = 0
		}
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
