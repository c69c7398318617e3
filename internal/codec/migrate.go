package codec

import (
	"fmt"
	"strconv"
)

// migration upgrades a generic document tree by exactly one version.
type migration struct {
	from, to int
	name     string
	apply    func(doc map[string]any) error
}

// migrations is the linear upgrade chain; entry i upgrades version i+1.
var migrations = []migration{
	{from: 1, to: 2, name: "parallel arrays and mask objects", apply: migrateV1ToV2},
	{from: 2, to: 3, name: "grouped results and nested plot styles", apply: migrateV2ToV3},
}

// Version 1 stored series as [[f, re, im], ...] point lists, masks as
// index lists and tagged results with "type".
func migrateV1ToV2(doc map[string]any) error {
	series, err := list(doc, "series")
	if err != nil {
		return err
	}
	for i, raw := range series {
		s, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("series %d: not an object", i)
		}
		points, err := list(s, "points")
		if err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
		freqs := make([]any, 0, len(points))
		re := make([]any, 0, len(points))
		im := make([]any, 0, len(points))
		for j, p := range points {
			triple, ok := p.([]any)
			if !ok || len(triple) != 3 {
				return fmt.Errorf("series %d point %d: expected [f, re, im]", i, j)
			}
			freqs = append(freqs, triple[0])
			re = append(re, triple[1])
			im = append(im, triple[2])
		}
		delete(s, "points")
		s["frequencies"], s["real"], s["imag"] = freqs, re, im
		if s["mask"], err = maskListToObject(s["mask"]); err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
	}
	results, err := list(doc, "results")
	if err != nil {
		return err
	}
	for i, raw := range results {
		r, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("result %d: not an object", i)
		}
		kind, ok := r["type"].(string)
		if !ok {
			return fmt.Errorf("result %d: missing type", i)
		}
		delete(r, "type")
		r["kind"] = kind
		if r["mask"], err = maskListToObject(r["mask"]); err != nil {
			return fmt.Errorf("result %d: %w", i, err)
		}
	}
	doc["version"] = 2
	return nil
}

// Version 2 kept a flat result list with series_id and flat plot item styles.
func migrateV2ToV3(doc map[string]any) error {
	results, err := list(doc, "results")
	if err != nil {
		return err
	}
	grouped := make(map[string]any)
	simulations := make([]any, 0)
	for i, raw := range results {
		r, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("result %d: not an object", i)
		}
		kind, _ := r["kind"].(string)
		if kind == "simulation" {
			delete(r, "series_id")
			simulations = append(simulations, r)
			continue
		}
		if kind != "test" && kind != "drt" && kind != "fit" {
			return fmt.Errorf("result %d: unknown kind %q", i, kind)
		}
		seriesID, ok := r["series_id"].(string)
		if !ok || seriesID == "" {
			return fmt.Errorf("result %d: missing series_id", i)
		}
		delete(r, "series_id")
		group, _ := grouped[seriesID].(map[string]any)
		if group == nil {
			group = make(map[string]any)
			grouped[seriesID] = group
		}
		existing, _ := group[kind].([]any)
		group[kind] = append(existing, r)
	}
	doc["results"] = grouped
	doc["simulations"] = simulations

	plots, err := list(doc, "plots")
	if err != nil {
		return err
	}
	for i, raw := range plots {
		p, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("plot %d: not an object", i)
		}
		items, err := list(p, "items")
		if err != nil {
			return fmt.Errorf("plot %d: %w", i, err)
		}
		for j, rawItem := range items {
			item, ok := rawItem.(map[string]any)
			if !ok {
				return fmt.Errorf("plot %d item %d: not an object", i, j)
			}
			style := make(map[string]any)
			for _, key := range []string{"color", "marker", "show_line", "show_legend", "z_order"} {
				if v, ok := item[key]; ok {
					style[key] = v
					delete(item, key)
				}
			}
			item["style"] = style
		}
	}
	if _, ok := doc["mode"]; !ok {
		doc["mode"] = string(ModeSession)
	}
	doc["version"] = 3
	return nil
}

// list returns doc[key] as a list; a missing or null key is an empty list.
func list(doc map[string]any, key string) ([]any, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return nil, nil
	}
	out, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list", key)
	}
	return out, nil
}

func maskListToObject(raw any) (map[string]any, error) {
	out := make(map[string]any)
	if raw == nil {
		return out, nil
	}
	indices, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("mask: expected an index list")
	}
	for _, v := range indices {
		f, ok := v.(float64)
		if !ok || f < 0 || f != float64(int(f)) {
			return nil, fmt.Errorf("mask: invalid index %v", v)
		}
		out[strconv.Itoa(int(f))] = true
	}
	return out, nil
}
