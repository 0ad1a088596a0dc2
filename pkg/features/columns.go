// Package features derives per-event behavioral signals from a batch of click events.
//
// Every aggregate is computed over the whole batch and broadcast back to each row of its
// group, so the result for a row depends on the other rows in the batch.
package features

// Published feature columns.
const (
	ClickRate                = "click_rate"
	ClicksPerIPHour          = "clicks_per_ip_hour"
	ClicksPerSubnet          = "clicks_per_subnet"
	ClicksFromIPCount        = "clicks_from_ip_count"
	DistinctUAPerIP          = "distinct_ua_per_ip"
	DeviceMismatch           = "device_mismatch"
	InterClickSeconds        = "inter_click_seconds"
	ShortInterclick          = "short_interclick"
	BurstRate                = "burst_rate"
	ImpossibleGeoTravel      = "impossible_geo_travel"
	SubnetRepeatCount        = "subnet_repeat_count"
	UAEntropyIP              = "ua_entropy_ip"
	HourSin                  = "hour_sin"
	HourCos                  = "hour_cos"
	AvgClicksPerImpressionIP = "avg_clicks_per_impression_ip"
	DuplicateUAFlag          = "duplicate_ua_flag"
	HighClickVariance        = "high_click_variance"
	NightActivity            = "night_activity"
	IPInt                    = "ip_int"
	ClicksPerMin             = "clicks_per_min"
)

// Intermediate columns kept on the frame but not fed to the model.
const (
	ClicksIn1Min   = "clicks_in_1min"
	CountriesPerIP = "countries_per_ip"
	UAModeCount    = "ua_mode_count"
	ClicksStdIP    = "clicks_std_ip"
)

// Columns is the ordered feature schema consumed by the model. Training and scoring
// must both use exactly this order.
var Columns = []string{
	ClickRate,
	ClicksPerIPHour,
	ClicksPerSubnet,
	ClicksFromIPCount,
	DistinctUAPerIP,
	DeviceMismatch,
	InterClickSeconds,
	ShortInterclick,
	BurstRate,
	ImpossibleGeoTravel,
	SubnetRepeatCount,
	UAEntropyIP,
	HourSin,
	HourCos,
	AvgClicksPerImpressionIP,
	DuplicateUAFlag,
	HighClickVariance,
	NightActivity,
	IPInt,
	ClicksPerMin,
}

// Intermediates lists the helper columns in the order they are exported.
var Intermediates = []string{ClicksIn1Min, CountriesPerIP, UAModeCount, ClicksStdIP}

// BinaryColumns are the flag features, always 0 or 1.
var BinaryColumns = []string{
	DeviceMismatch,
	ShortInterclick,
	ImpossibleGeoTravel,
	DuplicateUAFlag,
	HighClickVariance,
	NightActivity,
}

// Tunables of the derived flags.
const (
	// FirstClickSentinel is the inter-click gap assigned to the first event of an ip.
	FirstClickSentinel = 999999
	// ShortInterclickSeconds is the gap below which a click counts as rapid.
	ShortInterclickSeconds = 10
	// DuplicateUAThreshold is the (ip, user agent) row count above which the UA is flagged.
	DuplicateUAThreshold = 2
	// HighVarianceThreshold is the per-ip clicks standard deviation above which the ip is flagged.
	HighVarianceThreshold = 2
	// EntropySmoothing is added to each probability before the log.
	EntropySmoothing = 1e-9
	// MalformedSubnet is the subnet key used for unparsable addresses.
	MalformedSubnet = "0.0.0"
)

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()
