// internal/workers/search/default-search-strategy/models.go
package defaultsearchstrategy

import "search-courier/internal/models"

type Input = models.SearchInput

type Output = models.SearchOutput
