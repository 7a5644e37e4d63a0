package htb

import (
	"context"
	"fmt"
)

type machineProfileResponse struct {
	Info struct {
		ID             int64  `json:"id"`
		Name           string `json:"name"`
		OS             string `json:"os"`
		DifficultyText string `json:"difficultyText"`
		Avatar         string `json:"avatar"`
		Maker          *struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"maker"`
		Maker2 *struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"maker2"`
	} `json:"info"`
}

type makerProfileResponse struct {
	Profile struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Avatar      string `json:"avatar"`
		SystemOwns  int    `json:"system_owns"`
		UserOwns    int    `json:"user_owns"`
		Respects    int    `json:"respects"`
		Rank        string `json:"rank"`
		Ranking     int    `json:"ranking"`
		CountryName string `json:"country_name"`
		Team        *struct {
			Name string `json:"name"`
		} `json:"team"`
	} `json:"profile"`
}

// MachineProfile fetches the public profile of one machine by name.
func (c *Client) MachineProfile(ctx context.Context, name string) (*MachineProfile, error) {
	var resp machineProfileResponse
	if err := c.get(ctx, "/api/v4/machine/profile/"+name, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch machine profile: %w", err)
	}

	profile := &MachineProfile{
		ID:         resp.Info.ID,
		Name:       resp.Info.Name,
		OS:         resp.Info.OS,
		Difficulty: resp.Info.DifficultyText,
		AvatarURL:  c.baseURL + resp.Info.Avatar,
	}
	if resp.Info.Maker != nil {
		profile.Makers = append(profile.Makers, Maker{ID: resp.Info.Maker.ID, Name: resp.Info.Maker.Name})
	}
	if resp.Info.Maker2 != nil {
		profile.Makers = append(profile.Makers, Maker{ID: resp.Info.Maker2.ID, Name: resp.Info.Maker2.Name})
	}

	return profile, nil
}

// MakerProfile fetches the public profile of one content maker.
func (c *Client) MakerProfile(ctx context.Context, makerID int64) (*MakerProfile, error) {
	var resp makerProfileResponse
	if err := c.get(ctx, fmt.Sprintf("/api/v4/user/profile/basic/%d", makerID), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch maker profile: %w", err)
	}

	profile := &MakerProfile{
		ID:         resp.Profile.ID,
		Name:       resp.Profile.Name,
		AvatarURL:  c.baseURL + resp.Profile.Avatar,
		SystemOwns: resp.Profile.SystemOwns,
		UserOwns:   resp.Profile.UserOwns,
		Respects:   resp.Profile.Respects,
		Rank:       resp.Profile.Rank,
		Ranking:    resp.Profile.Ranking,
		Country:    resp.Profile.CountryName,
	}
	if resp.Profile.Team != nil {
		profile.Team = resp.Profile.Team.Name
	}

	return profile, nil
}
