package core

import "fmt"

// RegionProfile steers display formatting and the language hint handed to
// the extraction prompt. It never drives currency conversion.
type RegionProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`
	Lang     string `json:"lang"`
	Example  string `json:"example"`
}

// Regions lists the built-in selectable profiles.
var Regions = []RegionProfile{
	{ID: "PK", Name: "Pakistan", Currency: "PKR", Symbol: "Rs.", Lang: "Urdu/Hindi/English mix", Example: `"100 rupay ki chaye bechi" or "Ali ko 500 diye"`},
	{ID: "US", Name: "USA", Currency: "USD", Symbol: "$", Lang: "English", Example: `"Sold pizza for 15 dollars" or "Paid 10 for gas"`},
	{ID: "IN", Name: "India", Currency: "INR", Symbol: "₹", Lang: "Hindi/English", Example: `"50 rupay ka doodh becha" or "Karan ko 200 diye"`},
}

// RegionByID looks up a built-in profile.
func RegionByID(id string) (RegionProfile, error) {
	for _, r := range Regions {
		if r.ID == id {
			return r, nil
		}
	}
	return RegionProfile{}, fmt.Errorf("unknown region %q", id)
}

func (r RegionProfile) Validate() error {
	if r.ID == "" || r.Currency == "" {
		return fmt.Errorf("incomplete region profile")
	}
	return nil
}
