// Package market models prediction-market metadata and derives the pricing
// identifiers for every outcome.
//
// The metadata service is loosely typed: outcome labels and token ids arrive
// either as JSON arrays or as JSON strings that contain an array, numbers may
// be null or missing. MarketRecord decodes those shapes into explicit fields
// with presence flags so nothing downstream indexes untyped maps.
//
// Extract zips a record's Outcomes and TokenIDs by index. Records whose lists
// differ in length are reported as anomalies and yield no identifiers.
package market
