package models

// IssueReport is a geolocated, severity-tagged report fed to clustering.
type IssueReport struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Severity  int     `json:"severity"`
}

// Cluster is a dense group of reports. Points keep input order.
type Cluster struct {
	Points          [][2]float64 `json:"points"`
	AverageSeverity float64      `json:"avg_severity"`
	Centroid        [2]float64   `json:"centroid"`
	Count           int          `json:"count"`
}

// HotspotSummary is the compact form served to map views.
type HotspotSummary struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	Count           int     `json:"count"`
	AverageSeverity float64 `json:"avg_severity"`
}

// Summary reduces a cluster to its centroid.
func (c Cluster) Summary() HotspotSummary {
	return HotspotSummary{
		Lat:             c.Centroid[0],
		Lng:             c.Centroid[1],
		Count:           c.Count,
		AverageSeverity: c.AverageSeverity,
	}
}
