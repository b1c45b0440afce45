package collections

import (
	"testing"

	"github.com/daniiell3/jobrunr/testing/assert"
)

func TestNewArrayList(t *testing.T) {
	list := NewArrayList[int]()
	assert.NotNil(t, list)
	assert.Equal(t, 0, list.Size())
	assert.True(t, list.IsEmpty())
}

func TestArrayList_Add(t *testing.T) {
	list := NewArrayList[int]()
	err := list.Add(1)
	assert.Nil(t, err)
	assert.Equal(t, 1, list.Size())
	assert.True(t, list.Contains(1))

	err = list.Add(2)
	assert.Nil(t, err)
	assert.Equal(t, 2, list.Size())
	assert.True(t, list.Contains(2))
}

func TestArrayList_AddAll(t *testing.T) {
	list1 := NewArrayList[int]()
	list1.Add(1)
	list1.Add(2)

	list2 := NewArrayList[int]()
	list2.Add(3)
	list2.Add(4)

	err := list1.AddAll(list2)
	assert.Nil(t, err)
	assert.Equal(t, 4, list1.Size())
	assert.True(t, list1.Contains(3))
	assert.True(t, list1.Contains(4))
}

func TestArrayList_AddAt(t *testing.T) {
	list := NewArrayList[int]()
	err := list.AddAt(0, 1)
	assert.Nil(t, err)
	err = list.AddAt(1, 2)
	assert.Nil(t, err)
	assert.Equal(t, 2, list.Size())

	err = list.AddAt(5, 4)
	assert.NotNil(t, err)
	assert.Equal(t, 2, list.Size())
}

func TestArrayList_AddFirstAndAddLast(t *testing.T) {
	list := NewArrayList[int]()
	list.AddLast(1)
	list.AddFirst(0)
	assert.Equal(t, 2, list.Size())
	assert.Equal(t, 0, list.elements[0])
	assert.Equal(t, 1, list.elements[1])
}

func TestArrayList_Clear(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)
	list.Clear()
	assert.Equal(t, 0, list.Size())
	assert.True(t, list.IsEmpty())
}

func TestArrayList_Get(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)

	val, err := list.Get(0)
	assert.Nil(t, err)
	assert.Equal(t, 1, val)

	_, err = list.Get(2)
	assert.NotNil(t, err)
}

func TestArrayList_GetFirstAndGetLast(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)

	first, err := list.GetFirst()
	assert.Nil(t, err)
	assert.Equal(t, 1, first)

	last, err := list.GetLast()
	assert.Nil(t, err)
	assert.Equal(t, 2, last)

	list.Clear()
	_, err = list.GetFirst()
	assert.NotNil(t, err)
	_, err = list.GetLast()
	assert.NotNil(t, err)
}

func TestArrayList_IndexOfAndLastIndexOf(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)
	list.Add(2)
	list.Add(3)

	assert.Equal(t, 1, list.IndexOf(2))
	assert.Equal(t, 2, list.LastIndexOf(2))
	assert.Equal(t, -1, list.IndexOf(4))
}

func TestArrayList_Remove(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)
	list.Add(3)

	removed := list.Remove(2)
	assert.True(t, removed)
	assert.Equal(t, 2, list.Size())
	assert.False(t, list.Contains(2))

	removed = list.Remove(4)
	assert.False(t, removed)
}

func TestArrayList_RemoveAtFirstLast(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)
	list.Add(3)

	val, err := list.RemoveAt(1)
	assert.Nil(t, err)
	assert.Equal(t, 2, val)

	list.Clear()
	list.Add(1)
	list.Add(2)
	first, err := list.RemoveFirst()
	assert.Nil(t, err)
	assert.Equal(t, 1, first)

	last, err := list.RemoveLast()
	assert.Nil(t, err)
	assert.Equal(t, 2, last)

	_, err = list.RemoveFirst()
	assert.NotNil(t, err)
}

func TestArrayList_Iterator(t *testing.T) {
	list := NewArrayList[int]()
	list.Add(1)
	list.Add(2)
	list.Add(3)

	it := list.Iterator()
	assert.True(t, it.HasNext())
	assert.Equal(t, 1, it.Next())
	assert.True(t, it.HasNext())
	assert.Equal(t, 2, it.Next())
	assert.True(t, it.HasNext())
	assert.Equal(t, 3, it.Next())
	assert.False(t, it.HasNext())
}
