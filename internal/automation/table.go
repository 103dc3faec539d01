package automation

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseTable 从表格(或包含表格的容器)的HTML中解析出标题和数据行
// 标题取 thead 或首个含 th 的行;没有 th 时首行视为标题
func ParseTable(markup string) (Table, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return Table{}, fmt.Errorf("解析表格HTML失败: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return Table{}, fmt.Errorf("未找到表格元素")
	}

	var result Table
	headerFound := false

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		// 跳过嵌套表格中的行
		if row.Closest("table").Get(0) != table.Get(0) {
			return
		}

		headers := row.ChildrenFiltered("th")
		cells := row.ChildrenFiltered("td")

		switch {
		case !headerFound && headers.Length() > 0:
			result.Header = cellTexts(row.ChildrenFiltered("th, td"))
			headerFound = true
		case !headerFound:
			result.Header = cellTexts(cells)
			headerFound = true
		case cells.Length() > 0:
			values := cellTexts(row.ChildrenFiltered("th, td"))
			if !blankRow(values) {
				result.Rows = append(result.Rows, values)
			}
		}
	})

	if !headerFound {
		return Table{}, fmt.Errorf("表格没有标题行")
	}
	return result, nil
}

func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, normalizeText(cell.Text()))
	})
	return out
}

func blankRow(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}
