package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

// SegmentType is one dimension of the chart of accounts (entity, account,
// project, ...).
type SegmentType struct {
	ID           int       `gorm:"primary_key" json:"id"`
	SegmentName  string    `gorm:"size:50;not null;unique" json:"segment_name"`
	Description  string    `gorm:"size:255" json:"description"`
	IsRequired   bool      `gorm:"not null;default:false" json:"is_required"`
	HasHierarchy bool      `gorm:"not null;default:false" json:"has_hierarchy"`
	Length       int       `gorm:"not null;default:0" json:"length"`
	DisplayOrder int       `gorm:"not null;default:0" json:"display_order"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Segment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SegmentTypeId int             `gorm:"not null;index:uniq_segment_code,unique,priority:1" json:"segment_type_id"`
	Code          string          `gorm:"size:50;not null;index:uniq_segment_code,unique,priority:2" json:"code"`
	ParentCode    *string         `gorm:"size:50;index" json:"parent_code"`
	Alias         string          `gorm:"size:255" json:"alias"`
	NodeType      SegmentNodeType `gorm:"size:20;not null;default:'child'" json:"node_type"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSegmentType struct {
	SegmentName  string `json:"segment_name" validate:"required,max=50"`
	Description  string `json:"description"`
	IsRequired   bool   `json:"is_required"`
	HasHierarchy bool   `json:"has_hierarchy"`
	Length       int    `json:"length" validate:"gte=0,lte=50"`
	DisplayOrder int    `json:"display_order"`
	IsActive     *bool  `json:"is_active"`
}

type NewSegment struct {
	SegmentTypeId int             `json:"segment_type_id" validate:"required"`
	Code          string          `json:"code" validate:"required,max=50"`
	ParentCode    *string         `json:"parent_code"`
	Alias         string          `json:"alias"`
	NodeType      SegmentNodeType `json:"node_type"`
	IsActive      *bool           `json:"is_active"`
}

/*
caches:
	SegmentTypeList
*/

func (t SegmentType) Active() bool { return t.IsActive == nil || *t.IsActive }

func (s Segment) Active() bool { return s.IsActive == nil || *s.IsActive }

func ListSegmentTypes(ctx context.Context) ([]*SegmentType, error) {
	var results []*SegmentType
	exists, err := config.GetRedisObject("SegmentTypeList", &results)
	if err != nil {
		return nil, err
	}
	if exists {
		return results, nil
	}
	if err := config.GetDB().WithContext(ctx).Order("display_order, id").Find(&results).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("SegmentTypeList", &results, config.CacheLifespan()); err != nil {
		return nil, err
	}
	return results, nil
}

func GetSegmentType(ctx context.Context, id int) (*SegmentType, error) {
	return fetchModel[SegmentType](ctx, nil, id)
}

func CreateSegmentType(ctx context.Context, input *NewSegmentType) (*SegmentType, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	st := SegmentType{
		SegmentName:  strings.TrimSpace(input.SegmentName),
		Description:  input.Description,
		IsRequired:   input.IsRequired,
		HasHierarchy: input.HasHierarchy,
		Length:       input.Length,
		DisplayOrder: input.DisplayOrder,
		IsActive:     input.IsActive,
	}
	if st.IsActive == nil {
		st.IsActive = utils.NewTrue()
	}
	if err := config.GetDB().WithContext(ctx).Create(&st).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("segment type %s already exists", st.SegmentName)
		}
		return nil, err
	}
	return &st, config.RemoveRedisKey("SegmentTypeList")
}

func UpdateSegmentType(ctx context.Context, id int, input *NewSegmentType) (*SegmentType, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	st, err := fetchModel[SegmentType](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"SegmentName":  strings.TrimSpace(input.SegmentName),
		"Description":  input.Description,
		"IsRequired":   input.IsRequired,
		"HasHierarchy": input.HasHierarchy,
		"Length":       input.Length,
		"DisplayOrder": input.DisplayOrder,
	}
	if input.IsActive != nil {
		updates["IsActive"] = *input.IsActive
	}
	if err := config.GetDB().WithContext(ctx).Model(st).Updates(updates).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("segment type %s already exists", input.SegmentName)
		}
		return nil, err
	}
	if err := config.RemoveRedisKey("SegmentTypeList"); err != nil {
		return nil, err
	}
	return fetchModel[SegmentType](ctx, nil, id)
}

// DeleteSegmentType refuses types that still have values or appear in a combination.
func DeleteSegmentType(ctx context.Context, id int) (*SegmentType, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var result *SegmentType
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = fetchModelForUpdate[SegmentType](ctx, tx, id)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Segment{}).Where("segment_type_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("segment type %s has %d segment values", result.SegmentName, count)
		}
		if err := tx.Model(&SegmentCombinationDetail{}).Where("segment_type_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("segment type %s is used in %d combinations", result.SegmentName, count)
		}
		return tx.Delete(result).Error
	})
	if err != nil {
		return nil, err
	}
	return result, config.RemoveRedisKey("SegmentTypeList")
}

func (input *NewSegment) validate(ctx context.Context, tx *gorm.DB, id int) (*SegmentType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.NodeType != "" && !input.NodeType.IsValid() {
		return nil, utils.NewValidationError("invalid node type %s", input.NodeType)
	}
	st, err := fetchModel[SegmentType](ctx, tx, input.SegmentTypeId)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(input.Code)
	if st.Length > 0 && len(code) != st.Length {
		return nil, utils.NewFieldValidationError(
			fmt.Sprintf("code must be %d characters for segment type %s", st.Length, st.SegmentName),
			map[string]string{"code": "len"})
	}
	if input.ParentCode != nil && *input.ParentCode != "" {
		if *input.ParentCode == code {
			return nil, utils.NewValidationError("segment cannot be its own parent")
		}
		var count int64
		if err := txOrDB(ctx, tx).Model(&Segment{}).
			Where("segment_type_id = ? AND code = ? AND id <> ?", st.ID, *input.ParentCode, id).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, utils.NewFieldValidationError(
				fmt.Sprintf("parent code %s not found in segment type %s", *input.ParentCode, st.SegmentName),
				map[string]string{"parent_code": "exists"})
		}
	}
	return st, nil
}

func CreateSegment(ctx context.Context, input *NewSegment) (*Segment, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := input.validate(ctx, nil, 0); err != nil {
		return nil, err
	}
	seg := Segment{
		SegmentTypeId: input.SegmentTypeId,
		Code:          strings.TrimSpace(input.Code),
		ParentCode:    normalizeParentCode(input.ParentCode),
		Alias:         input.Alias,
		NodeType:      input.NodeType,
		IsActive:      input.IsActive,
	}
	if seg.NodeType == "" {
		seg.NodeType = SegmentNodeChild
	}
	if seg.IsActive == nil {
		seg.IsActive = utils.NewTrue()
	}
	if err := config.GetDB().WithContext(ctx).Create(&seg).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("segment code %s already exists for this type", seg.Code)
		}
		return nil, err
	}
	return &seg, nil
}

func UpdateSegment(ctx context.Context, id int, input *NewSegment) (*Segment, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	seg, err := fetchModel[Segment](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if input.SegmentTypeId != seg.SegmentTypeId {
		return nil, utils.NewValidationError("segment type of a segment cannot change")
	}
	if _, err := input.validate(ctx, nil, id); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(input.Code)
	if code != seg.Code {
		used, err := segmentInUse(ctx, nil, seg.ID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, utils.NewValidationError("segment %s is used in combinations; its code cannot change", seg.Code)
		}
	}
	updates := map[string]interface{}{
		"Code":       code,
		"ParentCode": normalizeParentCode(input.ParentCode),
		"Alias":      input.Alias,
	}
	if input.NodeType != "" {
		updates["NodeType"] = input.NodeType
	}
	if input.IsActive != nil {
		updates["IsActive"] = *input.IsActive
	}
	if err := config.GetDB().WithContext(ctx).Model(seg).Updates(updates).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, utils.ConflictError("segment code %s already exists for this type", code)
		}
		return nil, err
	}
	return fetchModel[Segment](ctx, nil, id)
}

// DeleteSegment refuses segments with children or used in a combination.
func DeleteSegment(ctx context.Context, id int) (*Segment, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var seg *Segment
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		seg, err = fetchModelForUpdate[Segment](ctx, tx, id)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Segment{}).
			Where("segment_type_id = ? AND parent_code = ?", seg.SegmentTypeId, seg.Code).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.NewValidationError("segment %s has %d child segments", seg.Code, count)
		}
		used, err := segmentInUse(ctx, tx, seg.ID)
		if err != nil {
			return err
		}
		if used {
			return utils.NewValidationError("segment %s is used in combinations", seg.Code)
		}
		return tx.Delete(seg).Error
	})
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func GetSegment(ctx context.Context, id int) (*Segment, error) {
	return fetchModel[Segment](ctx, nil, id)
}

// GetSegmentsByIds is the batch function behind the segment loader.
func GetSegmentsByIds(ctx context.Context, ids []int) ([]*Segment, error) {
	var results []*Segment
	if err := config.GetDB().WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ListSegments(ctx context.Context, segmentTypeId int, activeOnly bool) ([]*Segment, error) {
	q := config.GetDB().WithContext(ctx).Model(&Segment{})
	if segmentTypeId > 0 {
		q = q.Where("segment_type_id = ?", segmentTypeId)
	}
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var results []*Segment
	if err := q.Order("segment_type_id, code").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SegmentFullPath renders the ancestry of a segment as "A > B > C".
func SegmentFullPath(ctx context.Context, id int) (string, error) {
	seg, err := fetchModel[Segment](ctx, nil, id)
	if err != nil {
		return "", err
	}
	all, err := ListSegments(ctx, seg.SegmentTypeId, false)
	if err != nil {
		return "", err
	}
	return segmentPath(all, seg.Code), nil
}

// SegmentChildren returns every descendant of a segment, depth first.
func SegmentChildren(ctx context.Context, id int) ([]*Segment, error) {
	seg, err := fetchModel[Segment](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	all, err := ListSegments(ctx, seg.SegmentTypeId, false)
	if err != nil {
		return nil, err
	}
	return segmentDescendants(all, seg.Code), nil
}

func segmentPath(all []*Segment, code string) string {
	byCode := make(map[string]*Segment, len(all))
	for _, s := range all {
		byCode[s.Code] = s
	}
	var parts []string
	seen := map[string]bool{}
	for cur, ok := byCode[code]; ok && !seen[cur.Code]; cur, ok = parentOf(byCode, cur) {
		seen[cur.Code] = true
		parts = append([]string{cur.Code}, parts...)
	}
	return strings.Join(parts, " > ")
}

func parentOf(byCode map[string]*Segment, s *Segment) (*Segment, bool) {
	if s.ParentCode == nil || *s.ParentCode == "" {
		return nil, false
	}
	p, ok := byCode[*s.ParentCode]
	return p, ok
}

func segmentDescendants(all []*Segment, code string) []*Segment {
	children := make(map[string][]*Segment)
	for _, s := range all {
		if s.ParentCode != nil && *s.ParentCode != "" {
			children[*s.ParentCode] = append(children[*s.ParentCode], s)
		}
	}
	var out []*Segment
	seen := map[string]bool{code: true}
	var walk func(string)
	walk = func(c string) {
		for _, child := range children[c] {
			if seen[child.Code] {
				continue
			}
			seen[child.Code] = true
			out = append(out, child)
			walk(child.Code)
		}
	}
	walk(code)
	return out
}

func segmentInUse(ctx context.Context, tx *gorm.DB, segmentId int) (bool, error) {
	var count int64
	if err := txOrDB(ctx, tx).Model(&SegmentCombinationDetail{}).
		Where("segment_id = ?", segmentId).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func normalizeParentCode(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
