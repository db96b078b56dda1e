package pixiv

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	logx "pixivbot/pkg/logx"
)

// Typed accessors. Each one normalizes transport errors, malformed
// responses, and missing entities into a soft nil/empty result so that a
// single dead artwork never takes down a command or the watch loop.
// Credential failures are the exception: they surface to the caller.

// IllustDetail fetches one artwork by id. Returns (nil, nil) when the
// artwork is unavailable.
func (c *Client) IllustDetail(ctx context.Context, id int64) (*Illust, error) {
	params := url.Values{}
	params.Set("illust_id", strconv.FormatInt(id, 10))

	var root rootPayload
	if err := c.get(ctx, "/v1/illust/detail", params, &root); err != nil {
		return nil, c.soften("illust detail", id, err)
	}
	if root.Illust == nil || root.Illust.ID == 0 {
		return nil, nil
	}
	return convertIllust(*root.Illust), nil
}

// UserDetail fetches an author profile by id. Returns (nil, nil) when
// unavailable.
func (c *Client) UserDetail(ctx context.Context, id int64) (*User, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(id, 10))

	var payload userDetailPayload
	if err := c.get(ctx, "/v1/user/detail", params, &payload); err != nil {
		return nil, c.soften("user detail", id, err)
	}
	if payload.User.ID == 0 {
		return nil, nil
	}
	return &User{
		ID:              payload.User.ID,
		Name:            payload.User.Name,
		Account:         payload.User.Account,
		Comment:         payload.User.Comment,
		ProfileImageURL: payload.User.ProfileImageURLs.Medium,
		TotalIllusts:    payload.Profile.TotalIllusts,
	}, nil
}

// UserIllusts fetches an author's artwork listing (the API returns the
// newest works first). Returns an empty slice when unavailable.
func (c *Client) UserIllusts(ctx context.Context, userID int64) ([]Illust, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("type", "illust")

	var root rootPayload
	if err := c.get(ctx, "/v1/user/illusts", params, &root); err != nil {
		if err := c.soften("user illusts", userID, err); err != nil {
			return nil, err
		}
		return nil, nil
	}
	out := make([]Illust, 0, len(root.Illusts))
	for _, raw := range root.Illusts {
		out = append(out, *convertIllust(raw))
	}
	return out, nil
}

// soften logs and swallows everything except credential failures.
func (c *Client) soften(op string, id int64, err error) error {
	if errors.Is(err, ErrAuth) {
		return err
	}
	c.log.Debug("pixiv: "+op+" unavailable", logx.Int64("id", id), logx.Err(err))
	return nil
}

func convertIllust(raw illustPayload) *Illust {
	tags := make([]string, 0, len(raw.Tags))
	for _, t := range raw.Tags {
		tags = append(tags, t.Name)
	}

	urls := make([]string, 0, max(1, len(raw.MetaPages)))
	if raw.MetaSinglePage.OriginalImageURL != "" {
		urls = append(urls, raw.MetaSinglePage.OriginalImageURL)
	}
	for _, p := range raw.MetaPages {
		if p.ImageURLs.Original != "" {
			urls = append(urls, p.ImageURLs.Original)
		}
	}
	if len(urls) == 0 && raw.ImageURLs.Large != "" {
		urls = append(urls, raw.ImageURLs.Large)
	}

	return &Illust{
		ID:          raw.ID,
		Title:       raw.Title,
		AuthorID:    raw.User.ID,
		AuthorName:  raw.User.Name,
		Tags:        tags,
		Restriction: restrictionOf(raw, tags),
		ImageURLs:   urls,
		PageCount:   int(raw.PageCount),
		CreateDate:  raw.CreateDate,
	}
}

// restrictionOf combines the API's x_restrict field with a tag scan; some
// restricted works carry only the tag.
func restrictionOf(raw illustPayload, tags []string) Restriction {
	switch raw.XRestrict {
	case 1:
		return RestrictionR18
	case 2:
		return RestrictionR18G
	}
	for _, t := range tags {
		switch strings.ToUpper(t) {
		case "R-18G", "R18G":
			return RestrictionR18G
		case "R-18", "R18", "R_18":
			return RestrictionR18
		}
	}
	return RestrictionNone
}
