// Package sheets 把会员目录保存在 Google 表格中。
//
// 表头位于第 1 行，数据从第 2 行开始，列顺序为
// id, first_name, last_name, email, is_member, tags, greeting, closing。
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

const (
	dataRange    = "members!A2:H"
	appendRange  = "members!A:H"
	idColumn     = "members!A:A"
	inputOption  = "USER_ENTERED"
	firstSheetID = 0
	columnCount  = 8
)

// ErrNotConfigured 缺少服务账号或表格 ID
var ErrNotConfigured = errors.New("google sheets not configured")

// Store Google 表格存储
type Store struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewStore 使用服务账号创建表格存储
func NewStore(ctx context.Context, cfg config.SheetsConfig) (*Store, error) {
	if cfg.ServiceAccountEmail == "" || cfg.PrivateKey == "" || cfg.SpreadsheetID == "" {
		return nil, ErrNotConfigured
	}

	conf := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewStoreWithService(svc, cfg.SpreadsheetID), nil
}

// NewStoreWithService 使用已有的 Sheets 客户端
func NewStoreWithService(svc *sheets.Service, spreadsheetID string) *Store {
	return &Store{svc: svc, spreadsheetID: spreadsheetID}
}

// ListMembers 读取所有数据行，跳过没有 ID 的行
func (s *Store) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, dataRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read members sheet: %w", err)
	}

	members := make([]*domain.Member, 0, len(resp.Values))
	for _, row := range resp.Values {
		m := RowToMember(row)
		if m.ID == "" {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

// GetMember 在全部数据中查找成员
func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	members, err := s.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, storage.ErrMemberNotFound
}

// InsertMember 追加一行
func (s *Store) InsertMember(ctx context.Context, member *domain.Member) error {
	idx, err := s.rowIndex(ctx, member.ID)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return storage.ErrMemberExists
	}

	body := &sheets.ValueRange{Values: [][]interface{}{MemberToRow(member)}}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, appendRange, body).
		ValueInputOption(inputOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append member row: %w", err)
	}
	return nil
}

// ReplaceMember 覆盖成员所在的整行
func (s *Store) ReplaceMember(ctx context.Context, member *domain.Member) error {
	idx, err := s.rowIndex(ctx, member.ID)
	if err != nil {
		return err
	}
	if idx < 0 {
		return storage.ErrMemberNotFound
	}

	row := idx + 1 // A1 表示法从 1 开始
	rng := fmt.Sprintf("members!A%d:H%d", row, row)
	body := &sheets.ValueRange{Values: [][]interface{}{MemberToRow(member)}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, body).
		ValueInputOption(inputOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update member row: %w", err)
	}
	return nil
}

// DeleteMember 删除成员所在的行，后续行上移
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	idx, err := s.rowIndex(ctx, id)
	if err != nil {
		return err
	}
	if idx < 0 {
		return storage.ErrMemberNotFound
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         firstSheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(idx),
					EndIndex:        int64(idx + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete member row: %w", err)
	}
	return nil
}

// rowIndex 返回 ID 所在行的 0 基索引（包含表头），不存在时返回 -1
func (s *Store) rowIndex(ctx context.Context, id string) (int, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, idColumn).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read member ids: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && cell(row, 0) == id {
			return i, nil
		}
	}
	return -1, nil
}

// MemberToRow 按列顺序把成员转换为一行
func MemberToRow(m *domain.Member) []interface{} {
	isMember := "FALSE"
	if m.IsMember {
		isMember = "TRUE"
	}
	return []interface{}{
		m.ID,
		m.FirstName,
		m.LastName,
		m.Email,
		isMember,
		strings.Join(m.Tags, ","),
		m.Greeting,
		m.Closing,
	}
}

// RowToMember 把一行还原为成员，缺失的列视为空
func RowToMember(row []interface{}) *domain.Member {
	m := &domain.Member{
		ID:        cell(row, 0),
		FirstName: cell(row, 1),
		LastName:  cell(row, 2),
		Email:     cell(row, 3),
		IsMember:  parseBool(row, 4),
		Tags:      []string{},
		Greeting:  cell(row, 6),
		Closing:   cell(row, 7),
	}
	for _, tag := range strings.Split(cell(row, 5), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			m.Tags = append(m.Tags, tag)
		}
	}
	return m
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || i >= columnCount || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// 表格可能返回字符串 "TRUE" 或布尔值
func parseBool(row []interface{}, i int) bool {
	if i < len(row) {
		if b, ok := row[i].(bool); ok {
			return b
		}
	}
	return strings.EqualFold(cell(row, i), "true")
}
